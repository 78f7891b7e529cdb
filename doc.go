/*
Package totml runs tree-of-thought searches over candidate solutions to a
machine-learning task.

An agent repeatedly drafts, improves and debugs Python solutions. Every
attempt is executed, reviewed by a second model call and recorded as a node of
an append-only journal tree. The best non-buggy node is the answer.

# Architecture

The core types live in pkg/domain (MetricValue, Node, Journal) and the search
state machine in internal/runtime. Collaborators are reached through the
interfaces of pkg/ports and implemented by the adapters under pkg/adapters:
an OpenAI-compatible backend, a process sandbox, and memory, file, redis and
badger experiment stores. This package wires them together from a
pkg/config Config.

# Usage

	cfg, err := config.Load("totml.yaml")
	if err != nil {
		log.Fatal(err)
	}

	eng, err := totml.New(cfg, totml.WithLogger(logger))
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Close()

	ctx := context.Background()
	exp, err := eng.Create(ctx, cfg.Experiment.Name, cfg.Task())
	if err != nil {
		log.Fatal(err)
	}

	exp, err = eng.Run(ctx, exp.ID)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(exp.BestCode)

Experiments are persisted after every step, so an interrupted run resumes
from its journal on the next Run.
*/
package totml
