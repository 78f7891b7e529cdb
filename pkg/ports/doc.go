/*
Package ports defines the driven ports (interfaces) of the experiment agent.

These interfaces decouple the search core from its collaborators, allowing the
agent to work with any generative backend, code sandbox or storage engine.

# Key Interfaces

  - Backend: answers free-text and structured (function spec) queries.
  - Interpreter: executes generated code and returns execution telemetry.
  - ExperimentStore: persists experiment records and their journals.
  - DistributedLocker: coordinates experiment access across replicas.
*/
package ports
