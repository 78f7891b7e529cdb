/*
Package domain contains the core models of the experiment tree search.

It defines the entities the agent reasons about and is kept free of I/O,
persistence and transport concerns, following Hexagonal Architecture
principles.

# Key Entities

  - MetricValue: a directional score, or the Worst sentinel for unusable results.
  - Node: one candidate solution (plan + code) with its execution and review telemetry.
  - Journal: the append-only tree of every node produced by an experiment.
  - Prompt: an ordered, nested set of prompt sections compiled to markdown.
  - Experiment: the persisted record of one search run.
*/
package domain
