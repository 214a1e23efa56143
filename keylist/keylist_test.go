package keylist

import (
	"encoding/json"
	"math/rand/v2"
	"reflect"
	"testing"

	"gopkg.in/yaml.v3"
)

type keys []string

func (k keys) Keys() []string { return k }

func TestMergeAppendsNewKeysInIncomingOrder(t *testing.T) {
	l := New("a", "b")

	added := Merge(l, keys{"b", "c"})

	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(l.Keys(), want) {
		t.Fatalf("Keys() = %v, want %v", l.Keys(), want)
	}
	if want := []string{"c"}; !reflect.DeepEqual(added, want) {
		t.Fatalf("added = %v, want %v", added, want)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	incoming := keys{"x", "a", "y", "x"}

	once := New("a", "b")
	Merge(once, incoming)

	twice := New("a", "b")
	Merge(twice, incoming)
	if added := Merge(twice, incoming); len(added) != 0 {
		t.Fatalf("second merge added %v", added)
	}

	if !reflect.DeepEqual(once.Keys(), twice.Keys()) {
		t.Fatalf("merge twice = %v, merge once = %v", twice.Keys(), once.Keys())
	}
}

func TestMergeUnionProperty(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	alphabet := []string{"a", "b", "c", "d", "e", "f", "g", "h", ""}

	pick := func() []string {
		n := rng.IntN(8)
		out := make([]string, n)
		for i := range out {
			out[i] = alphabet[rng.IntN(len(alphabet))]
		}
		return out
	}

	for i := 0; i < 500; i++ {
		base, in := pick(), pick()
		l := New(base...)
		before := l.Keys()

		Merge(l, keys(in))
		after := l.Keys()

		seen := make(map[string]bool)
		for _, k := range after {
			if seen[k] {
				t.Fatalf("case %d: duplicate key %q in %v", i, k, after)
			}
			seen[k] = true
		}
		for _, k := range base {
			if !seen[k] {
				t.Fatalf("case %d: existing key %q lost", i, k)
			}
		}
		for _, k := range in {
			if !seen[k] {
				t.Fatalf("case %d: incoming key %q missing", i, k)
			}
		}
		if !reflect.DeepEqual(after[:len(before)], before) {
			t.Fatalf("case %d: existing order changed: %v -> %v", i, before, after)
		}
	}
}

func TestMergeDoesNotTouchIncoming(t *testing.T) {
	in := keys{"z", "a"}
	Merge(New("a"), in)
	if !reflect.DeepEqual([]string(in), []string{"z", "a"}) {
		t.Fatalf("incoming mutated: %v", in)
	}
}

func TestAddRejectsEmptyAndDuplicates(t *testing.T) {
	l := New("a")

	if l.Add("") {
		t.Fatal(`Add("") = true`)
	}
	if l.Add("a") {
		t.Fatal(`Add("a") = true for existing key`)
	}
	if !l.Add("b") {
		t.Fatal(`Add("b") = false`)
	}
	if want := []string{"a", "b"}; !reflect.DeepEqual(l.Keys(), want) {
		t.Fatalf("Keys() = %v, want %v", l.Keys(), want)
	}
}

func TestRemoveReindexes(t *testing.T) {
	l := New("a", "b", "c", "d")

	if !l.Remove("b") {
		t.Fatal("Remove(b) = false")
	}
	if l.Remove("b") {
		t.Fatal("second Remove(b) = true")
	}
	if got := l.Index("c"); got != 1 {
		t.Fatalf("Index(c) = %d, want 1", got)
	}
	if got := l.Index("d"); got != 2 {
		t.Fatalf("Index(d) = %d, want 2", got)
	}
	if got := l.Index("b"); got != -1 {
		t.Fatalf("Index(b) = %d, want -1", got)
	}

	l.Add("b")
	if want := []string{"a", "c", "d", "b"}; !reflect.DeepEqual(l.Keys(), want) {
		t.Fatalf("Keys() = %v, want %v", l.Keys(), want)
	}
}

func TestNewDropsDuplicates(t *testing.T) {
	l := New("a", "b", "a", "", "")
	if want := []string{"a", "b", ""}; !reflect.DeepEqual(l.Keys(), want) {
		t.Fatalf("Keys() = %v, want %v", l.Keys(), want)
	}
}

func TestKeysReturnsCopy(t *testing.T) {
	l := New("a")
	k := l.Keys()
	k[0] = "mutated"
	if l.Keys()[0] != "a" {
		t.Fatal("Keys() exposed internal slice")
	}
}

func TestCodecs(t *testing.T) {
	l := New("b", "a")

	js, err := json.Marshal(l)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	if string(js) != `["b","a"]` {
		t.Fatalf("json = %s", js)
	}
	empty, _ := json.Marshal(New())
	if string(empty) != "[]" {
		t.Fatalf("empty json = %s", empty)
	}

	var fromJSON List
	if err := json.Unmarshal([]byte(`["x","y","x"]`), &fromJSON); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(fromJSON.Keys(), []string{"x", "y"}) {
		t.Fatalf("json keys = %v", fromJSON.Keys())
	}

	ys, err := yaml.Marshal(l)
	if err != nil {
		t.Fatalf("yaml.Marshal: %v", err)
	}
	var fromYAML List
	if err := yaml.Unmarshal(ys, &fromYAML); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(fromYAML.Keys(), l.Keys()) {
		t.Fatalf("yaml keys = %v", fromYAML.Keys())
	}
}
