/*
Package prompts loads the YAML prompt templates used by the agent.

A template file holds nested prompt strings addressed by dotted keys
("introduction.draft"), optional defaults under `variables`, the package
list under `environment` and structured response schemas under
`function_specs`. Strings may reference `{name}` placeholders, which are
filled from the caller's variables first and the template defaults second.
Unknown placeholders are left untouched.

The defaults ship embedded in the binary; a directory on disk can be used
instead, with an optional version subdirectory (e.g. "v2").

	loader, err := prompts.Default()
	intro, err := loader.Get("agent", "introduction.draft", nil)
*/
package prompts
