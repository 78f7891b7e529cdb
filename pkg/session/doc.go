/*
Package session manages experiment records and drives their search loops.

A Manager creates experiments, runs the agent step loop against them while
persisting the journal after every node, and fans progress events out to
subscribers (HTTP streams, CLI). Access to one experiment is serialised with
reference-counted in-process locks and, optionally, a distributed lock so only
one replica writes a given journal.
*/
package session
