// Package ratelimit paces how quickly patients are opened in EPMA.
//
// A run normally goes as fast as the EPMA pages allow. When
// timing.patients_per_minute is set, ForPatientsPerMinute returns a
// SlidingWindow that admits at most that many patients in any rolling
// minute.
//
//	limiter := ratelimit.ForPatientsPerMinute(cfg.Timing.PatientsPerMinute)
//	if err := limiter.Wait(ctx); err != nil {
//	    return err // run cancelled
//	}
package ratelimit
