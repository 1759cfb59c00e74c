package cmd

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type ExitMocks struct {
	mock.Mock
	exitStatuses []int
}

func (m *ExitMocks) Fatalf(format string, v ...interface{}) {
	fmt.Printf(format+"\n", v...)
	m.exitStatuses = append(m.exitStatuses, 1)
}

func (m *ExitMocks) Fatalln(v ...interface{}) {
	fmt.Println(v...)
	m.exitStatuses = append(m.exitStatuses, 1)
}

func (m *ExitMocks) Exit(code int) {
	m.exitStatuses = append(m.exitStatuses, code)
}

func (m *ExitMocks) fatalCalls() int {
	return len(m.exitStatuses)
}

func (m *ExitMocks) lastStatus() int {
	if len(m.exitStatuses) == 0 {
		return 0
	}
	return m.exitStatuses[len(m.exitStatuses)-1]
}

func NewExitMocks() *ExitMocks {
	return &ExitMocks{
		exitStatuses: make([]int, 0),
	}
}

func MakeExitMock(m *ExitMocks) func(int) {
	return func(code int) {
		m.Exit(code)
	}
}

func MakeFatalfMock(m *ExitMocks) func(string, ...interface{}) {
	return func(format string, v ...interface{}) {
		m.Fatalf(format, v...)
	}
}

func MakeFatallnMock(m *ExitMocks) func(...interface{}) {
	return func(v ...interface{}) {
		m.Fatalln(v...)
	}
}

var (
	exitMocks *ExitMocks
	output    bytes.Buffer
	testDir   string
)

func setupTests(t *testing.T) func() {
	viper.Reset()
	testDir = t.TempDir()
	exitMocks = NewExitMocks()
	osExit = MakeExitMock(exitMocks)
	logFatalf = MakeFatalfMock(exitMocks)
	logFatalln = MakeFatallnMock(exitMocks)
	out = &output
	infoLogger = log.New(io.Discard, "", 0)
	color.NoColor = true

	return func() {
		viper.Reset()
		osExit = os.Exit
		logFatalf = log.Fatalf
		logFatalln = log.Fatalln
		out = os.Stdout
		infoLogger = log.New(os.Stdout, "", 0)
	}
}

func defaultArgs() []string {
	return []string{
		"--config", filepath.Join(testDir, "cryptfs.config"),
		"--blocks", filepath.Join(testDir, "blocks"),
		"--loglevel", "none",
	}
}

// runCmd executes a command and returns its output
func runCmd(t *testing.T, cmd []string, intentMsg string, expectError bool) string {
	fatalCallsBefore := exitMocks.fatalCalls()
	cryptfsFlags = flagsT{}
	output.Reset()

	rootCmd.SetArgs(cmd)
	require.NoError(t, rootCmd.Execute(), "error executing '"+strings.Join(cmd, " ")+"' : "+intentMsg)
	if expectError {
		require.Equal(t, fatalCallsBefore+1, exitMocks.fatalCalls(),
			"ran '"+strings.Join(cmd, " ")+"' expecting error and didn't see one in mocks : "+intentMsg)
	} else {
		require.Equal(t, fatalCallsBefore, exitMocks.fatalCalls(),
			"unexpected error in mocks on '"+strings.Join(cmd, " ")+"' : "+intentMsg)
	}
	return output.String()
}

func run(t *testing.T, intentMsg string, expectError bool, args ...string) string {
	return runCmd(t, append(args, defaultArgs()...), intentMsg, expectError)
}
