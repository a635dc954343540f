/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqsched

// dedupIndex merges concurrently submitted logically-identical requests into
// one execution. An entry lives while its owning request is queued,
// dispatched or waiting for a retry, and is dropped on any terminal state.
// Guarded by the scheduler mutex.
type dedupIndex[Req, Res any] struct {
	owners map[string]*queuedRequest[Req, Res]
}

func newDedupIndex[Req, Res any]() *dedupIndex[Req, Res] {
	return &dedupIndex[Req, Res]{owners: make(map[string]*queuedRequest[Req, Res])}
}

// owner returns the request currently owning the key, or nil.
func (d *dedupIndex[Req, Res]) owner(key string) *queuedRequest[Req, Res] {
	return d.owners[key]
}

func (d *dedupIndex[Req, Res]) put(req *queuedRequest[Req, Res]) {
	if req.dedupEnabled && req.dedupKey != "" {
		d.owners[req.dedupKey] = req
	}
}

// drop removes the entry if req still owns it.
func (d *dedupIndex[Req, Res]) drop(req *queuedRequest[Req, Res]) {
	if req.dedupEnabled && req.dedupKey != "" && d.owners[req.dedupKey] == req {
		delete(d.owners, req.dedupKey)
	}
}

func (d *dedupIndex[Req, Res]) len() int {
	return len(d.owners)
}
