package region

// overlaps implements the hybrid overlap predicate (spec §4.3). Two
// entries with different raw bases never overlap. With the same base:
// bounding-box fast path, the bounding-box result accepted as soon as
// either side is contiguous (exact when both are, a conservative false
// positive when the other side has gaps), the exact 1-D GCD check for
// pairs where neither side is contiguous, and a conservative
// bounding-box fallback for everything multi-dimensional and
// non-contiguous.
func overlaps(a, b entry) bool {
	if a.rawBase != b.rawBase {
		return false
	}
	if a.isDeepCopy || b.isDeepCopy {
		return false
	}

	if !boundingBoxOverlap(a, b) {
		return false
	}

	aContig := isContiguousRowMajor(a.shape, a.strides, 1)
	bContig := isContiguousRowMajor(b.shape, b.strides, 1)
	if aContig || bContig {
		// Bounding-box intersection is exact when both sides have no
		// gaps; when only one does, a gap in the other side can make
		// this a conservative false positive. Mixed pairs do not go
		// through the GCD check below.
		return true
	}

	if a.ndim == 1 && b.ndim == 1 {
		return overlap1DExact(
			a.storageOffset, a.strides[0], a.shape[0],
			b.storageOffset, b.strides[0], b.shape[0],
		)
	}

	// Multi-dimensional, non-contiguous: accept the bounding-box result
	// as a conservative false positive (spec §9, open question).
	return overlapND(a, b)
}

// boundingBoxOverlap is the fast bounds-intersection check.
func boundingBoxOverlap(a, b entry) bool {
	return a.minByteOffset <= b.maxByteOffset && b.minByteOffset <= a.maxByteOffset
}

// overlapND is the deliberate extension point for a future exact
// multi-dimensional Diophantine solver (spec §9). Today it just returns
// the bounding-box verdict, which the caller has already computed true by
// the time overlapND is reached.
func overlapND(a, b entry) bool {
	return true
}

// overlap1DExact solves, for integers 0<=i<sizeA, 0<=j<sizeB:
//
//	offA + i*strideA == offB + j*strideB
//
// A solution exists iff (offB-offA) is divisible by gcd(strideA, strideB)
// and the resulting k-interval intersection (from extended Euclid) is
// non-empty. overlap1DExact(a, b) == overlap1DExact(b, a) by construction
// (the equation is symmetric under relabeling).
func overlap1DExact(offA, strideA, sizeA, offB, strideB, sizeB uint64) bool {
	if sizeA == 0 || sizeB == 0 {
		return false
	}
	if strideA == 0 || strideB == 0 {
		// A zero stride means every index maps to the same offset;
		// degenerate to a direct offset-range check.
		return rangesOverlap(offA, sizeA, strideA, offB, sizeB, strideB)
	}

	g, x, _ := extendedGCD(int64(strideA), int64(strideB))
	diff := int64(offB) - int64(offA)
	if diff%g != 0 {
		return false
	}

	// General solution: i = i0 + k*(strideB/g), j = j0 - k*(strideA/g)
	// for integer k, where i0 = x*(diff/g).
	strideBOverG := strideB / uint64(g)

	i0 := x * (diff / g)
	// Normalize i0 into a canonical residue mod strideBOverG so the
	// interval search below doesn't depend on extended-Euclid's
	// arbitrary particular solution.
	step := int64(strideBOverG)
	if step != 0 {
		i0 = ((i0 % step) + step) % step
	}

	// i ranges over [0, sizeA), stepping by strideBOverG from i0;
	// corresponding j = (offA + i*strideA - offB) / strideB must also
	// land in [0, sizeB).
	for i := i0; i < int64(sizeA); i += step {
		if i < 0 {
			continue
		}
		numer := int64(offA) + i*int64(strideA) - int64(offB)
		if numer < 0 {
			continue
		}
		if numer%int64(strideB) != 0 {
			continue
		}
		j := numer / int64(strideB)
		if j >= 0 && j < int64(sizeB) {
			return true
		}
	}
	return false
}

func rangesOverlap(offA, sizeA, strideA, offB, sizeB, strideB uint64) bool {
	maxA := offA
	if strideA > 0 {
		maxA = offA + (sizeA-1)*strideA
	}
	maxB := offB
	if strideB > 0 {
		maxB = offB + (sizeB-1)*strideB
	}
	return offA <= maxB && offB <= maxA
}

// extendedGCD returns (g, x, y) such that a*x + b*y == g == gcd(a, b).
func extendedGCD(a, b int64) (g, x, y int64) {
	if b == 0 {
		return a, 1, 0
	}
	g, x1, y1 := extendedGCD(b, a%b)
	return g, y1, x1 - (a/b)*y1
}
