package errorsig

// Playbook is an ordered set of recovery steps for an error kind.
type Playbook struct {
	Kind                Kind
	Steps               []string
	EscalationThreshold int
}

var playbooks = map[Kind]Playbook{
	KindSyntax: {
		Kind: KindSyntax,
		Steps: []string{
			"Identify the exact location of the syntax error",
			"Check for common issues: missing delimiters, brackets, parentheses",
			"Verify the surrounding block structure",
			"Fix the syntax error",
			"Run linter to catch additional issues",
		},
		EscalationThreshold: 5,
	},
	KindImport: {
		Kind: KindImport,
		Steps: []string{
			"Identify the missing module or package",
			"Check whether the dependency is declared",
			"If not declared, add it to the manifest and install",
			"If declared, check the import path and spelling",
			"Verify the package layout is intact",
		},
		EscalationThreshold: 5,
	},
	KindType: {
		Kind: KindType,
		Steps: []string{
			"Identify the types involved in the error",
			"Check function signatures and return types",
			"Add missing annotations or conversions",
			"Fix the type mismatch",
			"Run the type checker to verify",
		},
		EscalationThreshold: 5,
	},
	KindRuntime: {
		Kind: KindRuntime,
		Steps: []string{
			"Identify the runtime condition causing the error",
			"Add debugging output to trace execution",
			"Check for infinite loops or recursion",
			"Add guards for edge cases",
			"Fix the root cause",
		},
		EscalationThreshold: 5,
	},
	KindTestFailure: {
		Kind: KindTestFailure,
		Steps: []string{
			"Identify which test is failing",
			"Check the assertion that failed",
			"Determine whether the test or the code is wrong",
			"Fix either the test or the implementation",
			"Run the test again to verify",
		},
		EscalationThreshold: 10,
	},
	KindEnvironment: {
		Kind: KindEnvironment,
		Steps: []string{
			"Identify the missing resource or permission issue",
			"Check file paths and permissions",
			"Verify environment variables",
			"Create missing files or directories if needed",
			"Adjust permissions or paths",
		},
		EscalationThreshold: 3,
	},
	KindTimeout: {
		Kind: KindTimeout,
		Steps: []string{
			"Identify what operation is timing out",
			"Check whether the timeout value is reasonable",
			"Look for performance bottlenecks",
			"Optimize slow operations",
			"Increase the timeout if the operation is legitimately slow",
		},
		EscalationThreshold: 5,
	},
	KindNetwork: {
		Kind: KindNetwork,
		Steps: []string{
			"Check network connectivity",
			"Verify the target host and port",
			"Check for firewall or proxy issues",
			"Retry with exponential backoff",
			"Add error handling for network failures",
		},
		EscalationThreshold: 8,
	},
	KindLogic: {
		Kind: KindLogic,
		Steps: []string{
			"Identify the logical error",
			"Trace the data flow",
			"Check boundary conditions",
			"Fix the logic",
			"Add tests for edge cases",
		},
		EscalationThreshold: 5,
	},
	KindUnknown: {
		Kind: KindUnknown,
		Steps: []string{
			"Locate the exact error message and stack trace",
			"Search for similar known errors",
			"Add debugging output",
			"Try to reproduce consistently",
			"Escalate if unable to diagnose",
		},
		EscalationThreshold: 5,
	},
}

// PlaybookFor returns the playbook for a kind, falling back to the unknown
// playbook for kinds without a dedicated one.
func PlaybookFor(kind Kind) Playbook {
	if pb, ok := playbooks[kind]; ok {
		return pb
	}
	return playbooks[KindUnknown]
}
