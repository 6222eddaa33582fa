// Command kvctl issues a single datastore operation against a cluster and
// prints the result as JSON.
//
// Usage:
//
//	kvctl [-cluster cluster.yaml] [-timeout 5s] <op> args...
//
// Operations:
//
//	strset KEY VALUE              strget KEY
//	lpush KEY VALUE...            rpush KEY VALUE...
//	lrange KEY START END          sadd KEY MEMBER...
//	smembers KEY                  hset KEY FIELD VALUE [FIELD VALUE...]
//	hget KEY FIELD                hgetall KEY
//	zadd KEY SCORE MEMBER...      zrange KEY START END [withscores]
//	delete KEY                    nodes
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dreamware/clusterkv/internal/config"
	"github.com/dreamware/clusterkv/internal/manager"
)

var errUsage = errors.New("usage")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "kvctl: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("kvctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	clusterFile := fs.String("cluster", config.DefaultClusterFile, "cluster file")
	timeout := fs.Duration("timeout", 5*time.Second, "overall deadline")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: kvctl [-cluster file] [-timeout d] <op> args...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	cf, err := config.LoadClusterFile(*clusterFile)
	if err != nil {
		return err
	}
	opts, err := cf.ManagerOptions()
	if err != nil {
		return err
	}
	mgr := manager.New(opts...)
	defer mgr.Close()
	for _, n := range cf.Nodes {
		if _, err := mgr.AddNode(n); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	waitForProbes(ctx, mgr)

	result, err := dispatch(ctx, mgr, fs.Arg(0), fs.Args()[1:])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// waitForProbes blocks until every node has been probed once so that
// liveness-aware selectors see real statuses.
func waitForProbes(ctx context.Context, mgr *manager.Manager) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		pending := false
		for _, n := range mgr.Nodes() {
			if n.LastCheck.IsZero() {
				pending = true
				break
			}
		}
		if !pending {
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func dispatch(ctx context.Context, mgr *manager.Manager, op string, args []string) (any, error) {
	need := func(min int, exact bool) error {
		if len(args) < min || (exact && len(args) != min) {
			return fmt.Errorf("%s: wrong number of arguments", op)
		}
		return nil
	}

	switch strings.ToLower(op) {
	case "nodes":
		return mgr.Nodes(), nil
	case "strset":
		if err := need(2, true); err != nil {
			return nil, err
		}
		return mgr.StrSet(ctx, args[0], args[1])
	case "strget":
		if err := need(1, true); err != nil {
			return nil, err
		}
		return mgr.StrGet(ctx, args[0])
	case "lpush":
		if err := need(2, false); err != nil {
			return nil, err
		}
		return mgr.LPush(ctx, args[0], args[1:]...)
	case "rpush":
		if err := need(2, false); err != nil {
			return nil, err
		}
		return mgr.RPush(ctx, args[0], args[1:]...)
	case "lrange":
		if err := need(3, true); err != nil {
			return nil, err
		}
		start, end, err := bounds(args[1], args[2])
		if err != nil {
			return nil, err
		}
		return mgr.LRange(ctx, args[0], start, end)
	case "sadd":
		if err := need(2, false); err != nil {
			return nil, err
		}
		return mgr.SAdd(ctx, args[0], args[1:]...)
	case "smembers":
		if err := need(1, true); err != nil {
			return nil, err
		}
		return mgr.SMembers(ctx, args[0])
	case "hset":
		if err := need(3, false); err != nil {
			return nil, err
		}
		if len(args)%2 == 0 {
			return nil, fmt.Errorf("%s: fields and values must come in pairs", op)
		}
		if len(args) == 3 {
			return mgr.HSetField(ctx, args[0], args[1], args[2])
		}
		mapping := make(map[string]string, len(args)/2)
		for i := 1; i < len(args); i += 2 {
			mapping[args[i]] = args[i+1]
		}
		return mgr.HSetMapping(ctx, args[0], mapping)
	case "hget":
		if err := need(2, true); err != nil {
			return nil, err
		}
		v, found, err := mgr.HGet(ctx, args[0], args[1])
		if err != nil || !found {
			return nil, err
		}
		return v, nil
	case "hgetall":
		if err := need(1, true); err != nil {
			return nil, err
		}
		return mgr.HGetAll(ctx, args[0])
	case "zadd":
		if err := need(3, false); err != nil {
			return nil, err
		}
		if len(args)%2 == 0 {
			return nil, fmt.Errorf("%s: scores and members must come in pairs", op)
		}
		members := make(map[string]float64, len(args)/2)
		for i := 1; i < len(args); i += 2 {
			score, err := strconv.ParseFloat(args[i], 64)
			if err != nil {
				return nil, fmt.Errorf("%s: score %q: %w", op, args[i], err)
			}
			members[args[i+1]] = score
		}
		return mgr.ZAdd(ctx, args[0], members)
	case "zrange":
		if err := need(3, false); err != nil {
			return nil, err
		}
		if len(args) > 4 || (len(args) == 4 && !strings.EqualFold(args[3], "withscores")) {
			return nil, fmt.Errorf("%s: expected KEY START END [withscores]", op)
		}
		start, end, err := bounds(args[1], args[2])
		if err != nil {
			return nil, err
		}
		if len(args) == 4 {
			return mgr.ZRange(ctx, args[0], start, end)
		}
		return mgr.ZRangeMembers(ctx, args[0], start, end)
	case "delete", "del":
		if err := need(1, true); err != nil {
			return nil, err
		}
		return mgr.Delete(ctx, args[0])
	default:
		return nil, fmt.Errorf("unknown operation %q", op)
	}
}

func bounds(startStr, endStr string) (int, int, error) {
	start, err := strconv.Atoi(startStr)
	if err != nil {
		return 0, 0, fmt.Errorf("start %q: %w", startStr, err)
	}
	end, err := strconv.Atoi(endStr)
	if err != nil {
		return 0, 0, fmt.Errorf("end %q: %w", endStr, err)
	}
	return start, end, nil
}
