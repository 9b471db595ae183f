package strategy_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"tcplb/internal/backend"
	"tcplb/internal/strategy"
)

var _ = Describe("Leastconn", func() {
	var (
		strat    strategy.Strategy
		backends []*backend.Backend
	)

	BeforeEach(func() {
		strat = strategy.NewLeastConnStrategy()
		backends = []*backend.Backend{
			backend.New("server1", 18861, "server1"),
			backend.New("server2", 18861, "server2"),
			backend.New("server3", 18861, "server3"),
		}
	})

	Describe("SelectBackend", func() {
		It("should select backend with fewest connections", func() {
			backends[0].IncrementConn()
			backends[0].IncrementConn()
			backends[1].IncrementConn()

			selected := strat.SelectBackend(backends)
			Expect(selected).To(Equal(backends[2]))
		})

		It("should break ties toward the earliest configuration index", func() {
			// A=2, B=0, C=1 -> B wins.
			backends[0].IncrementConn()
			backends[0].IncrementConn()
			backends[2].IncrementConn()

			selected := strat.SelectBackend(backends)
			Expect(selected).To(Equal(backends[1]))

			// After reserving B the counts are A=2, B=1, C=1; B and C tie
			// and B wins again on configuration order.
			selected.IncrementConn()
			Expect(strat.SelectBackend(backends)).To(Equal(backends[1]))
		})

		It("should select the first backend when all are idle", func() {
			Expect(strat.SelectBackend(backends)).To(Equal(backends[0]))
		})

		It("should track changing connection counts", func() {
			backends[0].IncrementConn()
			Expect(strat.SelectBackend(backends)).To(Equal(backends[1]))

			backends[1].IncrementConn()
			backends[1].IncrementConn()
			backends[0].DecrementConn()
			Expect(strat.SelectBackend(backends)).To(Equal(backends[0]))
		})

		It("should return nil for empty backend list", func() {
			Expect(strat.SelectBackend([]*backend.Backend{})).To(BeNil())
		})
	})
})
