package faces

import (
	"math"
	"sort"

	"photo-library/internal/database"
)

// DefaultMaxDistance is the Euclidean distance under which a face joins an
// existing group.
const DefaultMaxDistance = 0.6

// MinOverlap is the intersection over union above which a new detection is
// taken to be the same face as a previous detection on the same media.
const MinOverlap = 0.5

// centroid is the mean embedding of a group.
type centroid struct {
	groupID int64
	labeled bool
	sum     []float64
	count   int
}

func (c *centroid) add(e []float32) {
	if c.sum == nil {
		c.sum = make([]float64, len(e))
	}
	if len(e) != len(c.sum) {
		return
	}
	for i, v := range e {
		c.sum[i] += float64(v)
	}
	c.count++
}

func (c *centroid) distance(e []float32) float64 {
	if c.count == 0 || len(e) != len(c.sum) {
		return math.Inf(1)
	}
	var d float64
	for i, v := range e {
		diff := float64(v) - c.sum[i]/float64(c.count)
		d += diff * diff
	}
	return math.Sqrt(d)
}

// clusters holds the centroids of one owner's groups.
type clusters struct {
	byID  map[int64]*centroid
	order []int64
}

func newClusters(groups []database.FaceGroup, faces []database.ImageFace) *clusters {
	c := &clusters{byID: make(map[int64]*centroid, len(groups))}
	for _, g := range groups {
		c.ensure(g.ID, g.Labeled())
	}
	for _, f := range faces {
		if cent, ok := c.byID[f.FaceGroupID]; ok {
			cent.add(f.Embedding)
		}
	}
	return c
}

func (c *clusters) ensure(groupID int64, labeled bool) *centroid {
	if cent, ok := c.byID[groupID]; ok {
		return cent
	}
	cent := &centroid{groupID: groupID, labeled: labeled}
	c.byID[groupID] = cent
	c.order = append(c.order, groupID)
	sort.Slice(c.order, func(i, j int) bool { return c.order[i] < c.order[j] })
	return cent
}

// nearest returns the closest group within maxDistance. Ties go to the
// lowest group id. When labeledOnly is set only labeled groups compete.
func (c *clusters) nearest(e []float32, maxDistance float64, labeledOnly bool) (int64, bool) {
	best := int64(0)
	bestDist := math.Inf(1)
	for _, id := range c.order {
		cent := c.byID[id]
		if labeledOnly && !cent.labeled {
			continue
		}
		if d := cent.distance(e); d < bestDist {
			best, bestDist = id, d
		}
	}
	if best == 0 || bestDist > maxDistance {
		return 0, false
	}
	return best, true
}

// Distance is the Euclidean distance between two embeddings, +Inf when
// their lengths differ.
func Distance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var d float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		d += diff * diff
	}
	return math.Sqrt(d)
}

// overlap is the intersection over union of two rectangles.
func overlap(a, b database.Rect) float64 {
	w := math.Min(a.MaxX, b.MaxX) - math.Max(a.MinX, b.MinX)
	h := math.Min(a.MaxY, b.MaxY) - math.Max(a.MinY, b.MinY)
	if w <= 0 || h <= 0 {
		return 0
	}
	inter := w * h
	union := (a.MaxX-a.MinX)*(a.MaxY-a.MinY) + (b.MaxX-b.MinX)*(b.MaxY-b.MinY) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// samePlace picks the unclaimed previous face that det most likely
// re-detects: rectangles must overlap by MinOverlap, and among those the
// closest embedding wins.
func samePlace(previous []database.ImageFace, claimed []bool, det Detection) (int, bool) {
	best := -1
	bestDist := math.Inf(1)
	for i, p := range previous {
		if claimed[i] || overlap(p.Rect, det.Rect) < MinOverlap {
			continue
		}
		d := Distance(p.Embedding, det.Embedding)
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, best >= 0
}
