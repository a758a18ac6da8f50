package scans

import "context"

// Runner port (interface untuk eksekusi scanner)
type Runner interface {
	Run(ctx context.Context, cmd Command) (ScanResult, error)
}
