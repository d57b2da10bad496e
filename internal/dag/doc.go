// Package dag is the execution layer of the application. It compiles a
// target's composition tree (series and parallel steps over tasks and other
// targets) into a directed acyclic graph of task nodes, and executes the
// nodes concurrently on a worker pool according to their dependencies.
//
// Every occurrence of a task in the tree becomes its own node. A series step
// makes every entry node of a child depend on every exit node of the child
// before it; a parallel step adds no edges between its children.
package dag
