package loggerfx

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

const lineTimestampLayout = "2006-01-02 15:04:05"

// LineFormatter writes "[2006-01-02 15:04:05] message key=value ...", with an
// "ERROR: " prefix on error and more severe entries.
type LineFormatter struct{}

func (f *LineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "[%s] ", entry.Time.Format(lineTimestampLayout))

	if entry.Level <= logrus.ErrorLevel {
		buf.WriteString("ERROR: ")
	}

	buf.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := entry.Data[k]
		if err, ok := v.(error); ok {
			v = err.Error()
		}

		fmt.Fprintf(&buf, " %s=%v", k, v)
	}

	buf.WriteByte('\n')

	return buf.Bytes(), nil
}
