package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/tendant/object-gate/pkg/objectgate"
	"github.com/tendant/object-gate/pkg/objectgate/api"
	"github.com/tendant/object-gate/pkg/objectgate/config"
	"github.com/tendant/object-gate/pkg/objectgate/subscription"
)

const usage = `Object Gate ACL CLI

Inspects and repairs object access policies directly against the configured
storage roots. Policy writes bypass the owner check; use it for operations.

USAGE:
  aclctl <command> [options]

COMMANDS:
  resolve   Show which bucket and object a logical path maps to
  get       Print the policy of an object
  set       Replace the policy of an object
  check     Evaluate access for a user
  token     Issue a bearer token for a user (needs JWT_SECRET)
  subscribe Record a subscription of a user to a creator

ENVIRONMENT VARIABLES:
  Same as the server: PUBLIC_OBJECT_SEARCH_PATHS, LEGACY_OBJECT_SEARCH_PATHS,
  PRIVATE_OBJECT_DIR, STORAGE_URL, DATABASE_URL, REDIS_URL, JWT_SECRET.
  Configuration can be loaded from a .env file in the current directory.

EXAMPLES:
  aclctl resolve /objects/3f0c9a.mp4
  aclctl get /objects/3f0c9a.mp4 --json
  aclctl set /objects/3f0c9a.mp4 --owner=u1 --visibility=private --rule=subscriber:u1:read
  aclctl check /objects/3f0c9a.mp4 --user=u2 --permission=read
  aclctl token --user=u1 --ttl=1h
  aclctl subscribe --user=u2 --creator=u1 --status=cancelled

OPTIONS:
  --owner=<id>                   Policy owner (set)
  --visibility=<public|private>  Policy visibility (set, default: private)
  --rule=<type>:<id>:<perm>      Access rule, repeatable, evaluated in order (set)
  --user=<id>                    User to evaluate, issue a token for or subscribe (check, token, subscribe)
  --creator=<id>                 Creator subscribed to (subscribe)
  --status=<status>              active, cancelled, expired or past_due (subscribe, default: active)
  --permission=<read|write>      Permission to evaluate (check, default: read)
  --ttl=<duration>               Token lifetime (token, default: 1h)
  --json                         Output as JSON
`

type options struct {
	owner      string
	visibility objectgate.Visibility
	rules      []objectgate.ACLRule
	user       string
	permission objectgate.Permission
	creator    string
	status     subscription.Status
	ttl        time.Duration
	json       bool
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	command := os.Args[1]
	if command == "help" || command == "--help" || command == "-h" {
		fmt.Print(usage)
		os.Exit(0)
	}

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		log.Fatalf("Failed to read configuration: %v", err)
	}

	ctx := context.Background()
	rt, err := cfg.Build(ctx, nil, nil)
	if err != nil {
		log.Fatalf("Failed to build object gate: %v", err)
	}
	defer rt.Close()

	c := &cli{
		svc:  rt.Service,
		auth: api.NewAuthenticator(cfg.JWTSecret, nil),
		out:  os.Stdout,
	}
	if w, ok := rt.Subscriptions.(subscription.Writer); ok {
		c.subs = w
	}
	if err := c.run(ctx, command, os.Args[2:]); err != nil {
		rt.Close()
		log.Fatalf("%s: %v", command, err)
	}
}

type cli struct {
	svc  objectgate.Service
	auth *api.Authenticator
	subs subscription.Writer
	out  io.Writer
}

func (c *cli) run(ctx context.Context, command string, args []string) error {
	target, rest := splitTarget(args)
	opts, err := parseOptions(rest)
	if err != nil {
		return err
	}

	switch command {
	case "resolve":
		return c.resolve(ctx, target, opts)
	case "get":
		return c.get(ctx, target, opts)
	case "set":
		return c.set(ctx, target, opts)
	case "check":
		return c.check(ctx, target, opts)
	case "token":
		return c.token(opts)
	case "subscribe":
		return c.subscribe(ctx, opts)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// splitTarget separates a leading positional argument from the flags
func splitTarget(args []string) (string, []string) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "--") {
		return args[0], args[1:]
	}
	return "", args
}

func parseOptions(args []string) (options, error) {
	opts := options{
		visibility: objectgate.VisibilityPrivate,
		permission: objectgate.PermissionRead,
		status:     subscription.StatusActive,
		ttl:        time.Hour,
	}

	for _, arg := range args {
		if arg == "--json" {
			opts.json = true
			continue
		}

		key, value := parseFlag(arg)
		switch key {
		case "owner":
			opts.owner = value
		case "visibility":
			opts.visibility = objectgate.Visibility(value)
		case "rule":
			rule, err := parseRule(value)
			if err != nil {
				return opts, err
			}
			opts.rules = append(opts.rules, rule)
		case "user":
			opts.user = value
		case "permission":
			opts.permission = objectgate.Permission(value)
		case "creator":
			opts.creator = value
		case "status":
			opts.status = subscription.Status(value)
		case "ttl":
			d, err := time.ParseDuration(value)
			if err != nil {
				return opts, fmt.Errorf("invalid ttl %q: %w", value, err)
			}
			opts.ttl = d
		default:
			return opts, fmt.Errorf("unknown option %q", arg)
		}
	}
	return opts, nil
}

func parseFlag(arg string) (string, string) {
	arg = strings.TrimPrefix(arg, "--")
	key, value, _ := strings.Cut(arg, "=")
	return key, value
}

// parseRule reads type:id:permission
func parseRule(s string) (objectgate.ACLRule, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return objectgate.ACLRule{}, fmt.Errorf("invalid rule %q, expected type:id:permission", s)
	}
	return objectgate.ACLRule{
		Group:      objectgate.AccessGroup{Type: objectgate.GroupType(parts[0]), ID: parts[1]},
		Permission: objectgate.Permission(parts[2]),
	}, nil
}

func (c *cli) resolve(ctx context.Context, target string, opts options) error {
	if target == "" {
		return errors.New("an object path is required")
	}
	logical := c.svc.NormalizePath(target)
	obj, err := c.svc.ResolveObject(ctx, logical)
	if err != nil {
		return err
	}

	if opts.json {
		return c.printJSON(map[string]string{"objectPath": logical, "bucket": obj.Bucket, "name": obj.Name})
	}
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tBUCKET\tNAME")
	fmt.Fprintf(w, "%s\t%s\t%s\n", logical, obj.Bucket, obj.Name)
	return w.Flush()
}

func (c *cli) get(ctx context.Context, target string, opts options) error {
	if target == "" {
		return errors.New("an object path is required")
	}
	obj, err := c.svc.ResolveObject(ctx, c.svc.NormalizePath(target))
	if err != nil {
		return err
	}
	policy, err := c.svc.GetPolicy(ctx, obj)
	if err != nil {
		return err
	}

	if opts.json {
		return c.printJSON(policy)
	}
	if policy == nil {
		fmt.Fprintf(c.out, "%s has no policy (private to nobody)\n", obj)
		return nil
	}
	printPolicy(c.out, obj, policy)
	return nil
}

func (c *cli) set(ctx context.Context, target string, opts options) error {
	if target == "" {
		return errors.New("an object path is required")
	}
	obj, err := c.svc.ResolveObject(ctx, c.svc.NormalizePath(target))
	if err != nil {
		return err
	}

	policy := objectgate.ObjectACLPolicy{
		Owner:      opts.owner,
		Visibility: opts.visibility,
		ACLRules:   opts.rules,
	}
	if err := c.svc.SetPolicy(ctx, obj, policy); err != nil {
		return err
	}

	if opts.json {
		return c.printJSON(policy)
	}
	printPolicy(c.out, obj, &policy)
	return nil
}

func (c *cli) check(ctx context.Context, target string, opts options) error {
	if target == "" {
		return errors.New("an object path is required")
	}
	obj, err := c.svc.ResolveObject(ctx, c.svc.NormalizePath(target))
	if err != nil {
		return err
	}

	allowed, err := c.svc.CanAccess(ctx, objectgate.AccessRequest{
		UserID:     opts.user,
		Object:     obj,
		Permission: opts.permission,
	})
	if err != nil {
		return err
	}

	if opts.json {
		return c.printJSON(map[string]any{"user": opts.user, "permission": opts.permission, "allowed": allowed})
	}
	user := opts.user
	if user == "" {
		user = "(anonymous)"
	}
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	fmt.Fprintf(c.out, "%s %s on %s: %s\n", user, opts.permission, obj, decision)
	return nil
}

func (c *cli) token(opts options) error {
	if opts.user == "" {
		return errors.New("--user is required")
	}
	if !c.auth.Enabled() {
		return errors.New("JWT_SECRET is not set")
	}
	token, err := c.auth.IssueToken(opts.user, opts.ttl)
	if err != nil {
		return err
	}

	if opts.json {
		return c.printJSON(map[string]string{"user": opts.user, "token": token})
	}
	fmt.Fprintln(c.out, token)
	return nil
}

func (c *cli) subscribe(ctx context.Context, opts options) error {
	if opts.user == "" || opts.creator == "" {
		return errors.New("--user and --creator are required")
	}
	switch opts.status {
	case subscription.StatusActive, subscription.StatusCancelled, subscription.StatusExpired, subscription.StatusPastDue:
	default:
		return fmt.Errorf("unknown status %q", opts.status)
	}
	if c.subs == nil {
		return errors.New("subscription store is read-only")
	}

	sub := subscription.Subscription{SubscriberID: opts.user, CreatorID: opts.creator, Status: opts.status}
	if err := c.subs.Put(ctx, sub); err != nil {
		return err
	}

	if opts.json {
		return c.printJSON(map[string]string{"user": sub.SubscriberID, "creator": sub.CreatorID, "status": string(sub.Status)})
	}
	fmt.Fprintf(c.out, "%s -> %s: %s\n", sub.SubscriberID, sub.CreatorID, sub.Status)
	return nil
}

func printPolicy(out io.Writer, obj objectgate.ObjectRef, policy *objectgate.ObjectACLPolicy) {
	fmt.Fprintf(out, "Object:     %s\n", obj)
	fmt.Fprintf(out, "Owner:      %s\n", policy.Owner)
	fmt.Fprintf(out, "Visibility: %s\n", policy.Visibility)
	if len(policy.ACLRules) == 0 {
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tGROUP\tPERMISSION")
	for i, rule := range policy.ACLRules {
		fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, rule.Group, rule.Permission)
	}
	w.Flush()
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
