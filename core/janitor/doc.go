// Package janitor periodically sweeps expired sessions out of session
// repositories so that every expiration produces an Expired event, even on
// backends whose storage drops records silently or not at all.
//
//	j := janitor.NewFromConfig(cfg, janitor.WithLogger(log))
//	_ = j.Add("redis", redisRepo)
//	g.Go(j.Run(ctx))
package janitor
