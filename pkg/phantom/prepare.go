package phantom

import (
	"context"
	"fmt"
	"sort"

	"github.com/cuemby/rangevault/pkg/commitlog"
	"github.com/cuemby/rangevault/pkg/dfs"
	"github.com/cuemby/rangevault/pkg/rangeerr"
	"github.com/cuemby/rangevault/pkg/types"
)

// TransferLogLinker links a phantom log as a LINK2 block into one of the
// process-wide commit logs (root/metadata/system/user, chosen by the
// range's table class), the step populate_range_and_log performs once a
// range's phantom log is non-empty.
type TransferLogLinker interface {
	LinkTransferLog(ctx context.Context, class types.TableClass, logDirectory string) error
}

// PrepareRanges implements phantom_prepare_ranges: for each range, writes
// every buffered fragment payload into a phantom transfer log on fs,
// links it into the owning commit log via linker, and advances the range
// to PREPARED. It returns the transfer log path chosen for each range so
// the caller can persist the corresponding Range metalog entity.
func (m *Map) PrepareRanges(ctx context.Context, fs dfs.Filesystem, linker TransferLogLinker, class types.TableClass, ranges []types.QualifiedRange) (map[types.QualifiedRange]string, error) {
	m.mu.Lock()
	targets := make([]*PhantomRange, 0, len(ranges))
	for _, qr := range ranges {
		pr, ok := m.ranges[qr]
		if !ok {
			m.mu.Unlock()
			return nil, rangeerr.New(rangeerr.KindRangeNotFound, "phantom.PrepareRanges", qr.String()+" not in phantom map")
		}
		if pr.Flags.Has(FlagPrepared) {
			continue
		}
		if !pr.Flags.Has(FlagLoaded) {
			m.mu.Unlock()
			return nil, rangeerr.New(rangeerr.KindPhantomRangeMapNotFound, "phantom.PrepareRanges", qr.String()+" is not LOADED")
		}
		targets = append(targets, pr)
	}
	m.mu.Unlock()

	result := make(map[types.QualifiedRange]string, len(ranges))
	for _, pr := range targets {
		path, err := populateRangeAndLog(ctx, fs, pr)
		if err != nil {
			return nil, fmt.Errorf("phantom: populate log for %s: %w", pr.Range, err)
		}

		if path != "" {
			dir := path[:len(path)-len("/log")]
			if err := linker.LinkTransferLog(ctx, class, dir); err != nil {
				return nil, fmt.Errorf("phantom: link transfer log for %s: %w", pr.Range, err)
			}
		}

		m.mu.Lock()
		pr.TransferLogPath = path
		pr.Flags |= FlagPrepared
		m.mu.Unlock()

		result[pr.Range] = path
	}
	return result, nil
}

// populateRangeAndLog writes every fragment buffer accumulated for pr, in
// fragment order, as a single DATA2 block per fragment into a phantom
// commit log at <rangeKey>/log, returning its directory-qualified log
// path, or "" if the range received no data (an empty phantom log is
// never linked).
func populateRangeAndLog(ctx context.Context, fs dfs.Filesystem, pr *PhantomRange) (string, error) {
	dir := "phantom/" + phantomDirName(pr.Range)
	logPath := dir + "/log"

	if len(pr.fragments) == 0 {
		return "", nil
	}

	ordered := make([]types.Fragment, 0, len(pr.fragments))
	for fragment := range pr.fragments {
		ordered = append(ordered, fragment)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Less(ordered[j]) })

	if err := fs.Mkdirs(ctx, dir); err != nil {
		return "", err
	}
	handle, err := fs.Create(ctx, logPath, true)
	if err != nil {
		return "", err
	}
	defer handle.Close()

	w := commitlog.NewWriter(handle)
	wrote := false
	for _, fragment := range ordered {
		buf := pr.fragments[fragment]
		if len(buf.data) == 0 {
			continue
		}
		if err := w.WriteData(int64(fragment.ID), 0, buf.data); err != nil {
			return "", err
		}
		wrote = true
	}
	if !wrote {
		return "", nil
	}
	if err := w.WriteEOF(0, 0); err != nil {
		return "", err
	}
	if err := handle.Sync(); err != nil {
		return "", err
	}
	return logPath, nil
}

// phantomDirName derives a filesystem-safe directory name for qr.
// QualifiedRange.Key embeds a NUL separator between start and end row,
// which is fine as a map key but not as a path component, so row
// boundaries are hex-encoded here instead.
func phantomDirName(qr types.QualifiedRange) string {
	return fmt.Sprintf("%s-%d-%x-%x", qr.Table.Name, qr.Table.Generation, qr.Range.StartRow, qr.Range.EndRow)
}
