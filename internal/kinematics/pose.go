package kinematics

// LinkTransform places one link for display: its midpoint and absolute orientation.
type LinkTransform struct {
	Midpoint Vec2    `json:"midpoint"`
	Angle    float64 `json:"angle"`
	Length   float64 `json:"length"`
}

// Pose is the result of forward kinematics over a chain configuration.
type Pose struct {
	Vertices   []Vec2          `json:"vertices"`
	Transforms []LinkTransform `json:"transforms"`
	End        Vec2            `json:"end"`
	COM        Vec2            `json:"com"`
}

// ForwardKinematics accumulates rotation from origin: link i points along
// angles[0]+...+angles[i]. The centre of mass weights each link midpoint by
// its length.
func ForwardKinematics(origin Vec2, lengths, angles []float64) Pose {
	n := len(lengths)
	pose := Pose{
		Vertices:   make([]Vec2, 0, n+1),
		Transforms: make([]LinkTransform, 0, n),
	}
	pose.Vertices = append(pose.Vertices, origin)

	var (
		rotation float64
		weighted Vec2
		mass     float64
		current  = origin
	)
	for i := 0; i < n; i++ {
		rotation += angles[i]
		next := current.Add(Polar(rotation).Scale(lengths[i]))
		mid := current.Lerp(next, 0.5)
		pose.Vertices = append(pose.Vertices, next)
		pose.Transforms = append(pose.Transforms, LinkTransform{Midpoint: mid, Angle: rotation, Length: lengths[i]})
		weighted = weighted.Add(mid.Scale(lengths[i]))
		mass += lengths[i]
		current = next
	}
	pose.End = current
	if mass > 0 {
		pose.COM = weighted.Scale(1 / mass)
	} else {
		pose.COM = origin
	}
	return pose
}

// EndAndCOM is ForwardKinematics without the vertex and transform lists. The
// samplers call it once per trial.
func EndAndCOM(origin Vec2, lengths, angles []float64) (end, com Vec2) {
	var (
		rotation float64
		weighted Vec2
		mass     float64
	)
	end = origin
	for i := range lengths {
		rotation += angles[i]
		next := end.Add(Polar(rotation).Scale(lengths[i]))
		weighted = weighted.Add(end.Lerp(next, 0.5).Scale(lengths[i]))
		mass += lengths[i]
		end = next
	}
	if mass <= 0 {
		return end, origin
	}
	return end, weighted.Scale(1 / mass)
}

// Vertices returns origin followed by the end of every link.
func Vertices(origin Vec2, lengths, angles []float64) []Vec2 {
	out := make([]Vec2, 0, len(lengths)+1)
	out = append(out, origin)
	var rotation float64
	current := origin
	for i := range lengths {
		rotation += angles[i]
		current = current.Add(Polar(rotation).Scale(lengths[i]))
		out = append(out, current)
	}
	return out
}
