package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDiff = `diff --git a/internal/server.go b/internal/server.go
index 2f1a3b4..9c8d7e6 100644
--- a/internal/server.go
+++ b/internal/server.go
@@ -10,3 +10,5 @@ func (s *Server) Start() error {
 	if s.listener == nil {
-		return errors.New("no listener")
+		return fmt.Errorf("no listener configured")
+	}
+	if s.handler == nil {
 		return nil
@@ -42 +44 @@ func (s *Server) Stop() {
-	s.done <- struct{}{}
+	close(s.done)
diff --git a/README.md b/README.md
index 11aa22b..33cc44d 100644
--- a/README.md
+++ b/README.md
@@ -1,2 +1,4 @@
-# old title
+# new title
+
+More words.
`

func TestParseMultipleFilesAndHunks(t *testing.T) {
	hunks, err := ParseString(sampleDiff)
	require.NoError(t, err)
	require.Len(t, hunks, 3)

	assert.Equal(t, "internal/server.go", hunks[0].FilePath)
	assert.Equal(t, 10, hunks[0].NewStart)
	assert.Equal(t, 5, hunks[0].NewLines)
	assert.Equal(t, 10, hunks[0].OldStart)
	assert.Equal(t, 3, hunks[0].OldLines)

	// Omitted length defaults to one line on both sides.
	assert.Equal(t, 44, hunks[1].NewStart)
	assert.Equal(t, 1, hunks[1].NewLines)
	assert.Equal(t, 1, hunks[1].OldLines)

	assert.Equal(t, "README.md", hunks[2].FilePath)
	assert.Equal(t, 1, hunks[2].NewStart)
	assert.Equal(t, 4, hunks[2].NewLines)
}

func TestParsePureDeletionHunk(t *testing.T) {
	text := `--- a/main.go
+++ b/main.go
@@ -3,2 +2,0 @@ func main() {
-	fmt.Println("a")
-	fmt.Println("b")
`
	hunks, err := ParseString(text)
	require.NoError(t, err)
	require.Len(t, hunks, 1)
	assert.Equal(t, 0, hunks[0].NewLines)

	// A deletion still anchors context at its insertion point.
	start, end := hunks[0].NewRange()
	assert.Equal(t, 2, start)
	assert.Equal(t, 2, end)
}

func TestParseDeletedFileSkipped(t *testing.T) {
	text := `--- a/gone.go
+++ /dev/null
@@ -1,10 +0,0 @@
-package gone
`
	hunks, err := ParseString(text)
	require.NoError(t, err)
	assert.Empty(t, hunks)
}

func TestParseNewFile(t *testing.T) {
	text := `--- /dev/null
+++ b/fresh.go
@@ -0,0 +1,3 @@
+package fresh
+
+var X = 1
`
	hunks, err := ParseString(text)
	require.NoError(t, err)
	require.Len(t, hunks, 1)
	assert.Equal(t, "fresh.go", hunks[0].FilePath)
	assert.Equal(t, 1, hunks[0].NewStart)
	assert.Equal(t, 3, hunks[0].NewLines)
}

func TestParseIgnoresGarbage(t *testing.T) {
	hunks, err := ParseString("commit message\nnot a diff at all\n@@ stray marker\n")
	require.NoError(t, err)
	assert.Empty(t, hunks)
}

func TestParseEmptyInput(t *testing.T) {
	hunks, err := ParseString("")
	require.NoError(t, err)
	assert.Empty(t, hunks)
}
