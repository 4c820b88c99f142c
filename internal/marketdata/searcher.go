package marketdata

import (
	"context"
	"sync"

	"github.com/wonny/allocator/internal/contracts"
	"github.com/wonny/allocator/internal/latest"
	"github.com/wonny/allocator/internal/metrics"
)

// Searcher runs search-as-you-type: each new search cancels the previous one
// and only the newest search may publish its result.
type Searcher struct {
	service *Service
	tracker *latest.Tracker

	mu   sync.Mutex
	last SearchResult
}

// NewSearcher creates a new searcher over service
func NewSearcher(service *Service) *Searcher {
	return &Searcher{
		service: service,
		tracker: latest.NewTracker(),
	}
}

// SearchReply is the outcome of one started search
type SearchReply struct {
	Result SearchResult
	Err    error
}

// Start supersedes any running search and runs this one in the background.
// Searches supersede each other in the order Start is called. The reply fails
// with ErrStaleResult when a newer search started before this one completed.
func (s *Searcher) Start(ctx context.Context, text string) <-chan SearchReply {
	reqCtx, token := s.tracker.Begin(ctx)
	reply := make(chan SearchReply, 1)

	go func() {
		res, err := s.service.Search(reqCtx, text)
		if err != nil && !s.tracker.IsCurrent(token) {
			metrics.StaleResults.Inc()
			reply <- SearchReply{Err: contracts.ErrStaleResult}
			return
		}
		if err != nil {
			reply <- SearchReply{Err: err}
			return
		}

		if !s.tracker.Commit(token, func() {
			s.mu.Lock()
			s.last = res
			s.mu.Unlock()
		}) {
			metrics.StaleResults.Inc()
			reply <- SearchReply{Err: contracts.ErrStaleResult}
			return
		}
		reply <- SearchReply{Result: res}
	}()
	return reply
}

// Search starts a search and waits for it.
// A search superseded before it completes fails with ErrStaleResult.
func (s *Searcher) Search(ctx context.Context, text string) (SearchResult, error) {
	r := <-s.Start(ctx, text)
	return r.Result, r.Err
}

// Last returns the last published result
func (s *Searcher) Last() SearchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Stop cancels the running search, if any
func (s *Searcher) Stop() {
	s.tracker.Stop()
}
