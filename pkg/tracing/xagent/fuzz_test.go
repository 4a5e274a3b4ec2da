package xagent

import (
	"testing"

	"github.com/omeyang/xwalk/pkg/tracing/xcorrelation"
)

func FuzzCarrierDeserialize(f *testing.F) {
	f.Add("1-dDE=-czE=-3-c3Zj-aW5zdA==-L2Vw-MTI3LjAuMC4xOjgw")
	f.Add("1-dDE=-czE=-x-c3Zj-aW5zdA==-L2Vw-MTI3LjAuMC4xOjgw")
	f.Add("")
	f.Add("--------")
	f.Add("0-a-b-c-d-e-f-g-h-i")

	f.Fuzz(func(t *testing.T, text string) {
		c := NewContextCarrier(xcorrelation.DefaultLimits())
		c.Deserialize(text, V3)
		if !c.IsValid(V3) {
			if c.Serialize(V3) != "" {
				t.Fatalf("invalid carrier serialized to %q", c.Serialize(V3))
			}
			return
		}
		again := NewContextCarrier(xcorrelation.DefaultLimits())
		again.Deserialize(c.Serialize(V3), V3)
		if again.Fields() != c.Fields() {
			t.Fatalf("round trip mismatch: %+v != %+v", again.Fields(), c.Fields())
		}
	})
}
