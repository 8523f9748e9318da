package features

import (
	"sort"

	"github.com/sawpanic/pumpwatch/internal/models"
)

// Cluster is a merged group of nearby book levels.
type Cluster struct {
	Price float64 // value-weighted price of the bucket
	USD   float64
}

// BidClusters merges bid levels within windowPct below price into buckets of
// 0.5% of price, sorted by notional descending.
func BidClusters(bids []models.BookLevel, price, windowPct float64) []Cluster {
	if price <= 0 {
		return nil
	}
	floor := price * (1 - windowPct/100)
	return bucketLevels(bids, price*0.005, func(p float64) bool {
		return p >= floor && p < price
	}, byUSDDesc)
}

// AskWalls merges ask levels within windowPct above price into buckets of 1%
// of price and keeps the significant ones (≥ 1.5× the mean bucket), nearest
// first, at most five.
func AskWalls(asks []models.BookLevel, price, windowPct float64) []Cluster {
	if price <= 0 {
		return nil
	}
	ceil := price * (1 + windowPct/100)
	clusters := bucketLevels(asks, price*0.01, func(p float64) bool {
		return p > price && p <= ceil
	}, byPriceAsc)
	if len(clusters) == 0 {
		return nil
	}

	var mean float64
	for _, c := range clusters {
		mean += c.USD
	}
	mean /= float64(len(clusters))
	thresh := mean * 1.5

	walls := clusters[:0]
	for _, c := range clusters {
		if c.USD >= thresh {
			walls = append(walls, c)
		}
	}
	if len(walls) > 5 {
		walls = walls[:5]
	}
	return walls
}

// BidDepthUSD totals bid notional within pct below price.
func BidDepthUSD(bids []models.BookLevel, price, pct float64) float64 {
	floor := price * (1 - pct/100)
	var sum float64
	for _, l := range bids {
		if l.Price >= floor && l.Price <= price {
			sum += l.USD()
		}
	}
	return sum
}

// AskDepthUSD totals ask notional within pct above price.
func AskDepthUSD(asks []models.BookLevel, price, pct float64) float64 {
	ceil := price * (1 + pct/100)
	var sum float64
	for _, l := range asks {
		if l.Price >= price && l.Price <= ceil {
			sum += l.USD()
		}
	}
	return sum
}

// MedianUSD returns the median cluster notional.
func MedianUSD(clusters []Cluster) float64 {
	if len(clusters) == 0 {
		return 0
	}
	vals := make([]float64, len(clusters))
	for i, c := range clusters {
		vals[i] = c.USD
	}
	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 1 {
		return vals[mid]
	}
	return (vals[mid-1] + vals[mid]) / 2
}

type clusterOrder int

const (
	byUSDDesc clusterOrder = iota
	byPriceAsc
)

func bucketLevels(levels []models.BookLevel, bucketSize float64, in func(float64) bool, order clusterOrder) []Cluster {
	if bucketSize <= 0 {
		return nil
	}
	type bucket struct {
		weighted float64 // Σ price·usd, numerator of the value-weighted price
		usd      float64
	}
	buckets := make(map[int]*bucket)
	for _, l := range levels {
		if !in(l.Price) {
			continue
		}
		k := int(l.Price / bucketSize)
		b := buckets[k]
		if b == nil {
			b = &bucket{}
			buckets[k] = b
		}
		usd := l.USD()
		b.weighted += l.Price * usd
		b.usd += usd
	}
	if len(buckets) == 0 {
		return nil
	}

	out := make([]Cluster, 0, len(buckets))
	for _, b := range buckets {
		if b.usd <= 0 {
			continue
		}
		out = append(out, Cluster{Price: b.weighted / b.usd, USD: b.usd})
	}
	switch order {
	case byPriceAsc:
		sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	default:
		sort.Slice(out, func(i, j int) bool { return out[i].USD > out[j].USD })
	}
	return out
}
