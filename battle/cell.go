package battle

// Kind 格子类型
type Kind int

const (
	KindEmpty Kind = iota
	KindPart
	KindHead
	KindFiredEmpty
	KindFiredWound
	KindFiredDestroyed
)

var kindNames = map[Kind]string{
	KindEmpty:          "empty",
	KindPart:           "part",
	KindHead:           "head",
	KindFiredEmpty:     "fired_empty",
	KindFiredWound:     "fired_wound",
	KindFiredDestroyed: "fired_destroyed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Fired 该格是否已被射击过
func (k Kind) Fired() bool {
	return k == KindFiredEmpty || k == KindFiredWound || k == KindFiredDestroyed
}

func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return KindEmpty, false
}

// Cell 棋盘上的一格，无主格子的 PlaneID 为空
type Cell struct {
	X       int
	Y       int
	Kind    Kind
	PlaneID string
}
