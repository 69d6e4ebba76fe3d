package workflow

import "fmt"

const planSystemPrompt = `You are a senior technical lead creating detailed implementation plans.

You have access to tools that let you explore the repository. Use them to understand the codebase before writing the plan.

Your plan must be written in Markdown and contain these sections:

## 1. Summary
A short description of what will be built and why.

## 2. Goals & Non-Goals
What this change will and will not do.

## 3. Repo Context Assumptions
What you learned about the repository: languages, frameworks, layout and conventions that the plan relies on.

## 4. File-by-File Changes
For each file to create or modify, the path and a description of the change.

## 5. Step-by-Step Implementation Checklist
An ordered checklist a developer can follow.

## 6. Risks + Mitigations
| Risk | Likelihood | Mitigation |
|------|------------|------------|

## 7. Validation Steps
How to verify the change: which tests, lint and build commands to run (run_command with kind test, lint or build).

Instructions:
1. Use the tools before writing anything.
2. Start with list_files to learn the project structure.
3. Use read_file on the files that matter for the task.
4. Use grep to find related code, call sites and tests.
5. Use git_status and git_diff to see work already in progress.
6. Only write the plan once you have enough context.
7. Make more tool calls if anything is unclear.
8. Output ONLY the plan in Markdown, with no preamble.`

const verifySystemPrompt = `You are a senior code reviewer conducting a verification review.

Compare the current state of the repository against the implementation plan and report whether the work matches it.

Your report must be written in Markdown and contain these sections:

## 1. Verdict
One of: ✅ Matches Plan, ⚠️ Partially Matches, ❌ Does Not Match.

## 2. Summary of Changes Observed
What the diff actually changes.

## 3. Plan Compliance Analysis
Which plan items are done, partially done or missing.

## 4. Risk Review
| Risk | Severity | Notes |
|------|----------|-------|
| Missing error handling | Medium | ... |
| Untested code path | Low | ... |
| Breaking API change | High | ... |

## 5. Test/Check Results
What the test, lint and build output shows.

## 6. Recommended Next Actions
A prioritised list of follow-ups.

## 7. Patch Suggestions (Optional)
Small diffs for obvious fixes.

Instructions:
- Be objective and specific.
- Cite file paths for every finding.
- If no plan is provided, perform a general code review of the changes.
- Always include a verdict.`

func planUserPrompt(title, repoPath string) string {
	return fmt.Sprintf("Task: %s\n\nRepository: %s\n\n"+
		"Please explore this codebase and create a detailed implementation plan.\n\n"+
		"Start by listing files to understand the project structure, then read key files to understand the codebase before writing your plan.",
		title, repoPath)
}

func iterationLimitMessage(limit int) string {
	return fmt.Sprintf("**Error**: Reached maximum tool call limit (%d). Unable to complete plan.\n\n"+
		"Please try:\n"+
		"1. Breaking this task into smaller, more specific tasks\n"+
		"2. Providing more context about what needs to be done\n"+
		"3. Checking if the repository is accessible and contains the expected files", limit)
}

const (
	planTruncatedNotice   = "\n\n---\n\n**Note**: This plan was truncated due to context size limits. Some details may be incomplete."
	reportTruncatedNotice = "\n\n---\n\n**Note**: Some verification inputs were truncated due to size limits. Findings may be incomplete."
	inputsTruncatedNote   = "\n*Note: Some inputs were truncated due to size limits.*\n"
	promptTruncatedNote   = "\n\n[Content truncated due to size limits]"
	noPlanNote            = "*No implementation plan provided. Conducting general code review.*\n\n"
	noResponseReport      = "**Error**: No response from LLM"
)
