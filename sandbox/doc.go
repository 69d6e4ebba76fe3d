// Package sandbox confines tool access to a single repository root.
//
// Every path handed to a tool goes through Root.Resolve, which rejects
// absolute inputs and any ".." sequence that would climb above the root,
// and checks the symlink-resolved target when the path exists. External
// programs run through Spawn: argument vectors only, never a shell string,
// with a hard timeout that kills the whole process group.
//
//	root, err := sandbox.NewRoot("/home/me/project")
//	p, err := root.Resolve("src/main.go")
//	res, err := sandbox.Spawn(ctx, "git", []string{"status"}, root.Dir(), 10*time.Second)
package sandbox
