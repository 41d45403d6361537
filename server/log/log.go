package log

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/logging"
	"github.com/cyclopcam/logs"
)

// GCPLogger sends messages to Google Cloud Logging instead of stdout
type GCPLogger struct {
	logs.Log // Used for anything that we don't send to GCP
	GCP      *logging.Logger
	Client   *logging.Client
}

// NewLog returns a GCP logger if GCP_PROJECT_ID and GCP_LOGNAME are set,
// otherwise a regular stdout logger.
func NewLog() (logs.Log, error) {
	stdout, err := logs.NewLog()
	if err != nil {
		return nil, err
	}
	gcpProjectID := os.Getenv("GCP_PROJECT_ID")
	gcpLogname := os.Getenv("GCP_LOGNAME")
	if gcpProjectID == "" || gcpLogname == "" {
		return stdout, nil
	}
	stdout.Infof("Logging to GCP %v / %v (you won't see further logs on stdout)", gcpProjectID, gcpLogname)
	client, err := logging.NewClient(context.Background(), gcpProjectID)
	if err != nil {
		return nil, fmt.Errorf("Failed to create GCP logging client: %w", err)
	}
	return &GCPLogger{
		Log:    stdout,
		GCP:    client.Logger(gcpLogname),
		Client: client,
	}, nil
}

func (l *GCPLogger) write(severity logging.Severity, format string, a ...interface{}) {
	l.GCP.Log(logging.Entry{
		Severity: severity,
		Payload:  fmt.Sprintf(format, a...),
	})
}

func (l *GCPLogger) Close() {
	l.GCP.Flush()
	l.Client.Close()
}

func (l *GCPLogger) Debugf(format string, a ...interface{}) {
	l.write(logging.Debug, format, a...)
}

func (l *GCPLogger) Infof(format string, a ...interface{}) {
	l.write(logging.Info, format, a...)
}

func (l *GCPLogger) Warnf(format string, a ...interface{}) {
	l.write(logging.Warning, format, a...)
}

func (l *GCPLogger) Errorf(format string, a ...interface{}) {
	l.write(logging.Error, format, a...)
}

func (l *GCPLogger) Criticalf(format string, a ...interface{}) {
	l.write(logging.Critical, format, a...)
}
