package sampling

import (
	"math"

	"sticksolo/internal/kinematics"
)

// ReachLoss favours poses whose end is on the goal, whose centre of mass is
// low and whose centre of mass sits between the end and the goal.
func ReachLoss(end, com, goal kinematics.Vec2) float64 {
	return 5*end.Dist(goal) + com.Y + math.Abs(com.X-(end.X+goal.X)/2)
}

// TransferLoss is used when stepping to a new foothold: it penalises height
// harder and centres the mass between the current pivot and the goal.
func TransferLoss(origin kinematics.Vec2) Loss {
	return func(end, com, goal kinematics.Vec2) float64 {
		return 5*end.Dist(goal) + 5*com.Y + math.Abs(com.X-(origin.X+goal.X)/2)
	}
}

// DistanceLoss only measures how far the end is from the goal.
func DistanceLoss(end, _, goal kinematics.Vec2) float64 { return end.Dist(goal) }
