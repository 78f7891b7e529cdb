package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCode(t *testing.T) {
	t.Run("Plan and python block", func(t *testing.T) {
		completion := "Train a random forest.\n\n```python\nimport sklearn\nprint(1)\n```\n"
		assert.Equal(t, "import sklearn\nprint(1)", extractCode(completion))
		assert.Equal(t, "Train a random forest.", extractPlan(completion))
	})

	t.Run("Multiple blocks are merged", func(t *testing.T) {
		completion := "Plan.\n```python\na = 1\n```\nthen\n```\nb = 2\n```\n"
		assert.Equal(t, "a = 1\n\nb = 2", extractCode(completion))
	})

	t.Run("Other languages are ignored", func(t *testing.T) {
		completion := "Plan.\n```bash\npip install x\n```\n"
		assert.Equal(t, "", extractCode(completion))
	})

	t.Run("No fence", func(t *testing.T) {
		assert.Equal(t, "", extractCode("just prose"))
		assert.Equal(t, "", extractPlan("just prose"))
	})

	t.Run("Fence without plan", func(t *testing.T) {
		completion := "```python\nprint(2)\n```"
		assert.Equal(t, "print(2)", extractCode(completion))
		assert.Equal(t, "", extractPlan(completion))
	})
}
