package capture

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
)

func TestRingBuffer_Write(t *testing.T) {
	tests := []struct {
		name   string
		size   int
		writes []string
		want   string
	}{
		{"empty", 5, nil, ""},
		{"partial", 5, []string{"abc"}, "abc"},
		{"exactly full", 5, []string{"abc", "de"}, "abcde"},
		{"wraps", 5, []string{"abc", "de", "fg"}, "cdefg"},
		{"wraps within one write", 5, []string{"abcd", "efg"}, "cdefg"},
		{"write larger than buffer", 5, []string{"ab", "0123456789"}, "56789"},
		{"many small writes", 3, []string{"a", "b", "c", "d", "e"}, "cde"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRingBuffer(tt.size)
			for _, w := range tt.writes {
				n, err := r.Write([]byte(w))
				if err != nil || n != len(w) {
					t.Fatalf("Write(%q) = %d, %v", w, n, err)
				}
			}
			if got := string(r.Bytes()); got != tt.want {
				t.Errorf("Bytes() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRingBuffer_BytesIsCopy(t *testing.T) {
	r := NewRingBuffer(8)
	_, _ = r.Write([]byte("hello"))
	b := r.Bytes()
	b[0] = 'X'
	if string(r.Bytes()) != "hello" {
		t.Error("modifying Bytes() result changed the buffer")
	}
}

func TestRingBuffer_TotalAndTruncated(t *testing.T) {
	r := NewRingBuffer(4)
	_, _ = r.Write([]byte("abc"))
	if r.Truncated() {
		t.Error("buffer should not be truncated yet")
	}
	_, _ = r.Write([]byte("def"))
	if !r.Truncated() {
		t.Error("buffer should report truncation")
	}
	if r.Total() != 6 {
		t.Errorf("Total() = %d, want 6", r.Total())
	}
	if got := string(r.Bytes()); got != "cdef" {
		t.Errorf("Bytes() = %q, want cdef", got)
	}
}

func TestRingBuffer_DefaultSize(t *testing.T) {
	r := NewRingBuffer(0)
	if got := len(r.data); got != DefaultSize {
		t.Errorf("capacity = %d, want %d", got, DefaultSize)
	}
}

func TestRingBuffer_Tail(t *testing.T) {
	tests := []struct {
		name  string
		size  int
		input string
		n     int
		want  []string
	}{
		{"empty", 32, "", 3, nil},
		{"fewer lines than n", 32, "one\ntwo\n", 5, []string{"one", "two"}},
		{"last n", 32, "a\nb\nc\nd\n", 2, []string{"c", "d"}},
		{"no trailing newline", 32, "a\nb", 5, []string{"a", "b"}},
		{"partial first line dropped", 8, "first\nsecond\nthird\n", 5, []string{"third"}},
		{"zero n", 32, "a\n", 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRingBuffer(tt.size)
			_, _ = r.Write([]byte(tt.input))
			if got := r.Tail(tt.n); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tail(%d) = %q, want %q", tt.n, got, tt.want)
			}
		})
	}
}

func TestRingBuffer_Concurrent(t *testing.T) {
	r := NewRingBuffer(64)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				_, _ = fmt.Fprintf(r, "%d:%d\n", i, j)
				_ = r.Bytes()
			}
		}()
	}
	wg.Wait()
	if got := len(r.Bytes()); got != 64 {
		t.Errorf("retained %d bytes, want 64", got)
	}
}
