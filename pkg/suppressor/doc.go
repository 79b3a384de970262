// Package suppressor runs a worklist against EPMA.
//
// For each patient, in hospital number order, the Suppressor opens the
// patient's notes and walks the "**Order Drug**" notes. A note is retitled
// SUPPRESSED when it has no order link, or when its linked drug is one of
// the patient's drugs in the worklist. After each suppression the note list
// is fetched again, because EPMA re-renders it and the old elements go
// stale.
//
// Usage:
//
//	session := epma.NewSession(driver, cfg.EPMA, cfg.Timing)
//	if err := session.Login(ctx, user, pass); err != nil {
//	    return err
//	}
//
//	s := suppressor.New(cfg, session,
//	    suppressor.WithRecorder(reportWriter),
//	    suppressor.WithCheckpoint(checkpointMgr, resume, forceRestart),
//	)
//	summary, err := s.Run(ctx, wl)
//
// Failure handling:
//
// A timeout while walking the notes abandons the patient. Stale elements
// cause a refetch and intercepted clicks a short back-off; both are bounded
// by retry.max_attempts per note. Suppression itself runs under a
// retry.UIRetrier that settles after intercepted clicks and backs off
// exponentially after timeouts.
// Failed patients are not checkpointed, so --resume tries them again.
//
// Dry run:
//
// With output.dry_run set, matching notes are reported as would_suppress and
// the editor is never opened.
package suppressor
