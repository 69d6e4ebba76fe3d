// Package repotools implements the repository tools offered to the model:
// list_files, read_file, grep, git_status, git_diff, git_log_short and
// run_command.
//
// Tool names form a closed set. Decode turns raw JSON arguments into a
// typed Call, Execute switches over every Call type, and Schemas
// advertises one schema per name. Dispatcher ties these together and hands
// each executed call to a Recorder.
//
// Executors only see a Workspace, which carries the sandboxed root. Paths
// go through sandbox.Root.Resolve and processes through sandbox.Spawn, so
// run_command can only start argument vectors from its allow-list.
package repotools
