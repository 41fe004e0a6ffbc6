package cables

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/HerbHall/cabletrack/pkg/models"
)

// Match is a resolved cable, and the port the token named if it named one.
type Match struct {
	CableID int64
	PortID  *int64
}

var (
	cableTokenRE    = regexp.MustCompile(`^[cC](\d+)$`)
	ticketTokenRE   = regexp.MustCompile(`^[tT](\d+)$`)
	portTokenRE     = regexp.MustCompile(`^[pP](\d+)$`)
	issueTokenRE    = regexp.MustCompile(`^[iI](\d+)$`)
	locationTokenRE = regexp.MustCompile(`^[sS]?(?:0x)?([0-9a-fA-F]+)(?:/[nN](?:0x)?[0-9a-fA-F]+)?/P(\d+)$`)
	namePortTokenRE = regexp.MustCompile(`^(.+)/P(\d+)$`)
	selectorTokenRE = regexp.MustCompile(`^@(?:bad:)?(\w+)$`)
)

// Location lookups prefer cables still in service over removed ones, then the
// oldest cable.
const preferInService = `ORDER BY c.state = 'removed', c.created_at, c.id LIMIT 1`

// Resolve turns one operator token into a cable. Accepted forms are c{id},
// t{ticket}, p{port id}, S{guid}[/N{guid}]/P{port}, {name}/P{port}, and any
// cable or port firmware or physical label. ok is false when nothing matches.
func (s *Store) Resolve(ctx context.Context, token string) (Match, bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Match{}, false, nil
	}

	if m := cableTokenRE.FindStringSubmatch(token); m != nil {
		id, _ := strconv.ParseInt(m[1], 10, 64)
		return s.matchOne(ctx, `SELECT c.id, NULL FROM cables c WHERE c.id = ?`, id)
	}
	if m := ticketTokenRE.FindStringSubmatch(token); m != nil {
		tid, _ := strconv.ParseInt(m[1], 10, 64)
		return s.matchOne(ctx, `SELECT c.id, NULL FROM cables c WHERE c.ticket_id = ? ORDER BY c.created_at, c.id LIMIT 1`, tid)
	}
	if m := portTokenRE.FindStringSubmatch(token); m != nil {
		pid, _ := strconv.ParseInt(m[1], 10, 64)
		return s.matchOne(ctx, `SELECT p.cable_id, p.id FROM cable_ports p WHERE p.id = ?`, pid)
	}

	match, ok, err := s.matchOne(ctx, `SELECT c.id, NULL FROM cables c
		WHERE c.firmware_label = ? OR c.physical_label = ? `+preferInService, token, token)
	if err != nil || ok {
		return match, ok, err
	}
	match, ok, err = s.matchOne(ctx, `SELECT c.id, p.id FROM cable_ports p JOIN cables c ON c.id = p.cable_id
		WHERE p.firmware_label = ? OR p.physical_label = ? `+preferInService, token, token)
	if err != nil || ok {
		return match, ok, err
	}

	if m := locationTokenRE.FindStringSubmatch(token); m != nil {
		if guid, err := models.ParseGUID(m[1]); err == nil {
			port, _ := strconv.Atoi(m[2])
			match, ok, err := s.matchOne(ctx, `SELECT c.id, p.id FROM cable_ports p JOIN cables c ON c.id = p.cable_id
				WHERE p.guid = ? AND p.port = ? `+preferInService, guid.DecimalString(), port)
			if err != nil || ok {
				return match, ok, err
			}
		}
	}
	if m := namePortTokenRE.FindStringSubmatch(token); m != nil {
		port, _ := strconv.Atoi(m[2])
		return s.matchOne(ctx, `SELECT c.id, p.id FROM cable_ports p JOIN cables c ON c.id = p.cable_id
			WHERE p.name = ? AND p.port = ? `+preferInService, strings.TrimSpace(m[1]), port)
	}
	return Match{}, false, nil
}

func (s *Store) matchOne(ctx context.Context, query string, args ...any) (Match, bool, error) {
	var (
		m      Match
		portID sql.NullInt64
	)
	err := s.q.QueryRowContext(ctx, query, args...).Scan(&m.CableID, &portID)
	if errors.Is(err, sql.ErrNoRows) {
		return Match{}, false, nil
	}
	if err != nil {
		return Match{}, false, fmt.Errorf("resolve: %w", err)
	}
	if portID.Valid {
		id := portID.Int64
		m.PortID = &id
	}
	return m, true, nil
}

// Tokens splits operator arguments on commas, dropping empty entries.
func Tokens(args []string) []string {
	var out []string
	for _, a := range args {
		for _, t := range strings.Split(a, ",") {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

// eachToken calls try for every token of args. A token that matches nothing
// as a whole is retried word by word, so "c1 c2" resolves while labels that
// contain spaces still match in one piece. It returns the tokens and words
// that matched nothing.
func eachToken(args []string, try func(tok string) (bool, error)) ([]string, error) {
	var unresolved []string
	for _, tok := range Tokens(args) {
		ok, err := try(tok)
		if err != nil {
			return nil, err
		}
		if ok {
			continue
		}
		words := strings.Fields(tok)
		if len(words) < 2 {
			unresolved = append(unresolved, tok)
			continue
		}
		for _, w := range words {
			ok, err := try(w)
			if err != nil {
				return nil, err
			}
			if !ok {
				unresolved = append(unresolved, w)
			}
		}
	}
	return unresolved, nil
}

// ResolveCables resolves operator arguments to cable ids, deduplicated in
// the order given. Arguments may hold several tokens separated by commas or
// spaces. Besides the Resolve forms it accepts the selectors @{state},
// @bad:{state}, @online and @offline. Tokens that match nothing are returned
// in unresolved.
func (s *Store) ResolveCables(ctx context.Context, args []string) (ids []int64, unresolved []string, err error) {
	seen := make(map[int64]bool)
	add := func(id int64) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	unresolved, err = eachToken(args, func(tok string) (bool, error) {
		if m := selectorTokenRE.FindStringSubmatch(tok); m != nil {
			found, err := s.selectCables(ctx, strings.ToLower(m[1]))
			if err != nil {
				return false, err
			}
			for _, id := range found {
				add(id)
			}
			return true, nil
		}

		match, ok, err := s.Resolve(ctx, tok)
		if err != nil || !ok {
			return false, err
		}
		add(match.CableID)
		return true, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return ids, unresolved, nil
}

func (s *Store) selectCables(ctx context.Context, selector string) ([]int64, error) {
	var f Filter
	switch selector {
	case "online", "offline":
		online := selector == "online"
		f.Online = &online
	default:
		st := models.CableState(selector)
		if !st.Valid() {
			return nil, fmt.Errorf("unknown selector @%s", selector)
		}
		f.States = []models.CableState{st}
	}

	cables, err := s.scanCables(ctx, `SELECT `+cableColumns+` FROM cables c`+filterClause(&f)+` ORDER BY c.id`, filterArgs(&f)...)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(cables))
	for _, c := range cables {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// ResolvePorts resolves operator arguments to cable port ids. Tokens that
// name a cable rather than a port are returned in unresolved.
func (s *Store) ResolvePorts(ctx context.Context, args []string) (ids []int64, unresolved []string, err error) {
	seen := make(map[int64]bool)
	unresolved, err = eachToken(args, func(tok string) (bool, error) {
		match, ok, err := s.Resolve(ctx, tok)
		if err != nil || !ok || match.PortID == nil {
			return false, err
		}
		if !seen[*match.PortID] {
			seen[*match.PortID] = true
			ids = append(ids, *match.PortID)
		}
		return true, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return ids, unresolved, nil
}

// ResolveIssues parses i{id} tokens separated by commas or spaces.
func ResolveIssues(args []string) (ids []int64, unresolved []string) {
	for _, tok := range Tokens(args) {
		for _, w := range strings.Fields(tok) {
			m := issueTokenRE.FindStringSubmatch(w)
			if m == nil {
				unresolved = append(unresolved, w)
				continue
			}
			id, _ := strconv.ParseInt(m[1], 10, 64)
			ids = append(ids, id)
		}
	}
	return ids, unresolved
}
