package totml_test

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/botasky11/totml"
	"github.com/botasky11/totml/internal/testutils"
	"github.com/botasky11/totml/pkg/config"
	"github.com/botasky11/totml/pkg/ports"
)

// ExampleEngine_Run runs a two-step search against a scripted backend.
// Swap the backend for the default OpenAI-compatible one by dropping
// WithBackend and exporting OPENAI_API_KEY.
func ExampleEngine_Run() {
	workspace, err := os.MkdirTemp("", "totml-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(workspace)

	cfg := config.Default()
	cfg.Experiment.Goal = "Predict house prices."
	cfg.Experiment.DataDir = ""
	cfg.Experiment.WorkspaceDir = workspace
	cfg.Experiment.Steps = 2
	cfg.Agent.NumDrafts = 1
	cfg.Agent.DebugProb = 0
	cfg.Store.Kind = "memory"

	backend := testutils.NewFakeBackend().
		Completion(testutils.Completion("Ridge regression.", "print('rmse', 0.41)")).
		Review(testutils.GoodReview(0.41, true)).
		Completion(testutils.Completion("Log-transform the target.", "print('rmse', 0.37)")).
		Review(testutils.GoodReview(0.37, true))

	eng, err := totml.New(cfg,
		totml.WithBackend(backend),
		totml.WithInterpreter(func(string) ports.Interpreter { return &testutils.FakeInterpreter{} }),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Close()

	ctx := context.Background()
	exp, err := eng.Create(ctx, "house-prices", cfg.Task())
	if err != nil {
		log.Fatal(err)
	}
	exp, err = eng.Run(ctx, exp.ID)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(exp.Status)
	fmt.Println(*exp.BestMetric)
	fmt.Println(exp.BestCode)

	// Output:
	// completed
	// 0.37
	// print('rmse', 0.37)
}
