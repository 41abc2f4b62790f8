// Package harness runs regression suites against the compiler.
//
// Every case of a suite gets its own session, opened through the session
// manager and closed when the case ends whatever its outcome. Inside the
// session the suite environment is applied and the case walks through its
// stages:
//
//	prepare      cd, search path, libraries, compiler flags
//	load         loadModel of the top-level package
//	resolve      getClassRestriction
//	check        checkModel (default on)
//	instantiate  instantiateModel (only together with check)
//	simulate     simulate with the merged settings
//	regression   compare the result file against the reference
//
// A case stops at its first failing stage. The result records that stage,
// the message and the engine diagnostics. Later cases still run.
//
// # Outcomes
//
//   - pass: every requested stage succeeded
//   - fail: the engine reported a problem with the model
//   - error: the case could not be exercised, e.g. no session
//
// # Usage
//
//	r := harness.New(launcher, cfg.SessionConfig(), logger, harness.WithRecorder(st))
//	run, err := r.Run(ctx, s, filepath.Dir(s.Source))
//	if err != nil {
//	    return err
//	}
//	fmt.Println(run.Summary())
//
// Tests drive the runner with testutil.FakeDialer and compare the recorded
// engine transcripts against golden files (see AssertGolden).
package harness
