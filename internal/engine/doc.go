// Package engine is the boundary to the third-party test engine.
//
// The engine is opaque to the rest of the driver. It is reached only through
// the Engine and Project interfaces: open a project file, set project
// properties, register listeners, run a selection of cases, a suite or the
// whole project, and release the project again. Engine callbacks are
// delivered to listeners one at a time, in the order the engine produced
// them, and all of them before the Run method returns.
//
// # Runtime
//
// A Runtime is the explicitly constructed engine environment of one driver
// instance. It owns a private working directory for project copies, the
// decrypted engine settings and the Engine implementation. It is created at
// host startup and closed at host shutdown; there is no package-level state.
//
// # Process Engine
//
// ProcessEngine runs the external runner executable once per run. The runner
// receives the working copy of the project, the selection and the project
// properties on its command line and reports progress as newline-delimited
// JSON on stdout:
//
//	{"event":"caseStarted","suite":"TS1","case":"TC1"}
//	{"event":"stepFinished","suite":"TS1","case":"TC1","step":"GetCapabilities","status":"FAILED",
//	 "assertions":[{"name":"Valid HTTP Status Codes","status":"FAILED","messages":["got 500"]}],
//	 "report":"<response/>","attachments":["appendix/1.xml"]}
//	{"event":"caseFinished","suite":"TS1","case":"TC1","status":"FAILED"}
//	{"event":"stepsDiscovered","count":3}
//
// Other stdout lines are treated as runner log output. Cancelling the run
// context sends SIGINT to the runner's process group so it can finish the
// current step; after the configured grace period the runner is killed.
package engine
