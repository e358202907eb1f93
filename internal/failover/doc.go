// Package failover decides which endpoint the next attempt of a logical
// request should target.
//
// A Decider keeps a blacklist of endpoints that recently failed. A failed
// endpoint is avoided until its cooldown elapses, after which it becomes
// eligible again and is pruned the next time the pool is scanned. There is
// no background sweeper and no health checking.
//
// The surrounding client drives the decider:
//
//	decider := failover.New(targets, 30*time.Second)
//	if !decider.IsRequestViable(req) {
//	    // empty pool, reject
//	}
//	for {
//	    resp, err := send(req)
//	    if err != nil {
//	        decider.MarkRequestFailed(req)
//	    }
//	    next, ok := decider.ComputeNextStage(req, resp)
//	    if !ok {
//	        // every endpoint is cooling down
//	    }
//	    req = next
//	}
package failover
