package judgment

// Phi is the golden ratio, used throughout the node as a geometric
// weight and backoff base; its inverses below serve as the confidence
// cap, the PageRank damping factor, and the burnout threshold.
const Phi = 1.6180339887498949

// PhiInverse is φ⁻¹ ≈ 0.618, the confidence cap and PageRank damping factor.
const PhiInverse = 1 / Phi

// PhiInverseSquare is φ⁻² ≈ 0.382, the burnout-risk threshold.
const PhiInverseSquare = PhiInverse * PhiInverse
