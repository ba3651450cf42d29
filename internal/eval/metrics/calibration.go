package metrics

import "github.com/bistro-cms/menuimport/internal/models"

// Bucket counts extracted items in a confidence band and how many of them were right
type Bucket struct {
	Low     float64
	High    float64
	Count   int
	Correct int
}

// Accuracy is the share of items in the band that matched an expected item
func (b Bucket) Accuracy() float64 {
	return ratio(b.Correct, b.Count)
}

// bucketEdges splits the confidence range; the review threshold is one of the edges
var bucketEdges = []float64{0, 0.5, models.LowConfidenceThreshold, 0.9, 1}

func newBuckets() []Bucket {
	buckets := make([]Bucket, len(bucketEdges)-1)
	for i := range buckets {
		buckets[i] = Bucket{Low: bucketEdges[i], High: bucketEdges[i+1]}
	}
	return buckets
}

func bucketFor(confidence float64) int {
	for i := 1; i < len(bucketEdges)-1; i++ {
		if confidence < bucketEdges[i] {
			return i - 1
		}
	}
	return len(bucketEdges) - 2
}

func calibrate(extracted []models.CandidateItem, correct []bool) []Bucket {
	buckets := newBuckets()
	for i, c := range extracted {
		b := &buckets[bucketFor(c.Confidence)]
		b.Count++
		if correct[i] {
			b.Correct++
		}
	}
	return buckets
}

func mergeBuckets(dst, src []Bucket) {
	for i := range dst {
		if i >= len(src) {
			return
		}
		dst[i].Count += src[i].Count
		dst[i].Correct += src[i].Correct
	}
}
