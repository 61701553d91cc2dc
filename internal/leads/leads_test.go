package leads

import (
	"errors"
	"strings"
	"testing"
)

func TestAppendLoadAndList(t *testing.T) {
	t.Parallel()
	s := New(t.TempDir())

	n, err := s.Append("ventas", []string{"@alice", "  bob ", "", "@"})
	if err != nil || n != 2 {
		t.Fatalf("Append = %d, %v", n, err)
	}
	if _, err := s.Append("abril", []string{"carol"}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load("ventas")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if strings.Join(got, ",") != "alice,bob" {
		t.Fatalf("Load = %v", got)
	}
	names, _ := s.List()
	if strings.Join(names, ",") != "abril,ventas" {
		t.Fatalf("List = %v", names)
	}
	if missing, err := s.Load("nope"); err != nil || len(missing) != 0 {
		t.Fatalf("Load missing = %v, %v", missing, err)
	}
}

func TestImportCSVFirstColumn(t *testing.T) {
	t.Parallel()
	s := New(t.TempDir())
	in := "@dave,Dave D\nerin\n\n\"@frank\",x,y\n"
	n, err := s.ImportCSV(strings.NewReader(in), "import")
	if err != nil || n != 3 {
		t.Fatalf("ImportCSV = %d, %v", n, err)
	}
	got, _ := s.Load("import")
	if strings.Join(got, ",") != "dave,erin,frank" {
		t.Fatalf("Load = %v", got)
	}
}

func TestDeleteAndInvalidNames(t *testing.T) {
	t.Parallel()
	s := New(t.TempDir())
	if _, err := s.Append("tmp", []string{"x"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("tmp"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if err := s.Delete("tmp"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete = %v", err)
	}
	if _, err := s.Load("../etc/passwd"); err == nil {
		t.Fatal("expected error for path name")
	}
}
