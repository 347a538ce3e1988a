package arbitrage

import (
	"github.com/alanyoungcy/triarbot/internal/domain"
	"github.com/alanyoungcy/triarbot/internal/market"
)

// CycleInput is the immutable state shared by every worker of one cycle.
type CycleInput struct {
	Prices     domain.PriceSnapshot
	Registry   *market.RegistrySnapshot
	Graph      *Graph
	Currencies []string
}

// ChunkResult is what one worker hands back to the orchestrator.
type ChunkResult struct {
	Opportunities []domain.Opportunity
	Stats         Stats
}

// Finder enumerates triangles from a chunk of starting currencies and
// simulates those that start from a preferred asset.
type Finder struct {
	Sim      Simulator
	Starting map[string]bool
}

// NewFinder builds a Finder for the given preferred starting assets.
func NewFinder(sim Simulator, startingAssets []string) *Finder {
	starting := make(map[string]bool, len(startingAssets))
	for _, a := range startingAssets {
		starting[a] = true
	}
	return &Finder{Sim: sim, Starting: starting}
}

// FindInChunk is a pure function of its inputs. It never panics: a failure
// inside one triangle is counted as FailUnknown and the walk continues.
func (f *Finder) FindInChunk(in *CycleInput, chunk []string) ChunkResult {
	out := ChunkResult{Stats: NewStats()}
	in.Graph.Triangles(chunk, func(a, b, c string) {
		out.Stats.TotalTriangles++
		if !f.Starting[a] {
			out.Stats.NonPriorityStart++
			return
		}
		res := f.Sim.SimulateTriangle(a, b, c, in.Prices, in.Registry)
		switch res.Outcome {
		case OutcomeFailed:
			out.Stats.Failures[res.Reason]++
		case OutcomeLowProfitPositive:
			out.Stats.LowProfitPositive++
		case OutcomeLowProfitNegative:
			out.Stats.LowProfitNegative++
		case OutcomeProfitable:
			out.Opportunities = append(out.Opportunities, res.Opportunity(a, b, c))
			out.Stats.Opportunities++
		}
	})
	return out
}

// Partition splits items into at most n contiguous chunks of near-equal size.
func Partition(items []string, n int) [][]string {
	if len(items) == 0 || n < 1 {
		return nil
	}
	size := (len(items) + n - 1) / n
	chunks := make([][]string, 0, n)
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[i:end])
	}
	return chunks
}
