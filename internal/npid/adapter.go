package npid

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Adapter is the high-level entry point the gateway and CLI consume. It
// owns one session, one token cache, and one resolver, and exposes the
// backend as named operations with clean parameters.
type Adapter struct {
	store    *SessionStore
	tokens   *TokenManager
	client   *Client
	resolver *Resolver
	email    string
	password string
	logger   *slog.Logger
}

// Options configures an Adapter.
type Options struct {
	BaseURL           string
	SessionFile       string
	Email             string
	Password          string
	APIKey            string
	RequestsPerMinute int
	Timeout           time.Duration
	TokenTTL          time.Duration
	IdentityTTL       time.Duration
	Logger            *slog.Logger
}

// New creates an Adapter. The session is not loaded or validated here;
// call EnsureSession before issuing operations.
func New(opts Options) *Adapter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	store := NewSessionStore(opts.BaseURL, opts.SessionFile, opts.Timeout, logger)
	tokens := NewTokenManager(store, opts.TokenTTL, logger)
	client := NewClient(opts.BaseURL, store.Client(), tokens, opts.RequestsPerMinute, opts.APIKey, logger)
	resolver := NewResolver(NewProfileLookup(store), opts.IdentityTTL, logger)
	return &Adapter{
		store:    store,
		tokens:   tokens,
		client:   client,
		resolver: resolver,
		email:    opts.Email,
		password: opts.Password,
		logger:   logger,
	}
}

// Session exposes the underlying session store.
func (a *Adapter) Session() *SessionStore { return a.store }

// Resolver exposes the identifier resolver.
func (a *Adapter) Resolver() *Resolver { return a.resolver }

// Execute runs a raw registered operation. Most callers prefer the typed
// methods below; this is the generic inbound surface.
func (a *Adapter) Execute(ctx context.Context, name string, params map[string]string, contextKey string) (*Result, error) {
	return a.client.Execute(ctx, name, params, contextKey)
}

// EnsureSession loads the persisted session, falling back to the login
// handshake when the record is missing or corrupt and credentials are
// configured.
func (a *Adapter) EnsureSession(ctx context.Context) error {
	if err := a.store.Load(); err == nil {
		return nil
	}
	if a.email == "" || a.password == "" {
		return &Error{Kind: KindAuthenticationRequired, Err: fmt.Errorf("no persisted session and no credentials configured")}
	}
	return a.store.Authenticate(ctx, a.email, a.password)
}

// Login forces the credential handshake. With force false a session that
// passes a live validation round trip is kept as is.
func (a *Adapter) Login(ctx context.Context, force bool) error {
	if !force {
		if ok, _ := a.store.Validate(ctx); ok {
			a.logger.Info("Session already valid, skipping login")
			return nil
		}
	}
	return a.store.Authenticate(ctx, a.email, a.password)
}

// ValidateSession performs the live login-check round trip.
func (a *Adapter) ValidateSession(ctx context.Context) (bool, error) {
	return a.store.Validate(ctx)
}

// --------------------------------------------------------------------------
// Inbox
// --------------------------------------------------------------------------

// Assignment filters accepted by InboxThreads.
const (
	FilterBoth       = "both"
	FilterAssigned   = "assigned"
	FilterUnassigned = "unassigned"
)

const maxInboxPages = 2

// InboxThreads lists video-team inbox threads, paging until limit is
// reached.
func (a *Adapter) InboxThreads(ctx context.Context, limit int, filter string) ([]Thread, error) {
	if limit <= 0 {
		limit = 100
	}
	if filter == "" {
		filter = FilterBoth
	}
	var all []Thread
	for page := 1; len(all) < limit && page <= maxInboxPages; page++ {
		res, err := a.client.Execute(ctx, "list_inbox", map[string]string{
			"page": strconv.Itoa(page),
		}, ContextGlobal)
		if err != nil {
			return nil, err
		}
		threads := ParseInboxThreads(res.RawHTML)
		if len(threads) == 0 {
			break
		}
		for _, t := range threads {
			switch filter {
			case FilterUnassigned:
				if !t.CanAssign {
					continue
				}
			case FilterAssigned:
				if t.CanAssign {
					continue
				}
			}
			all = append(all, t)
		}
	}
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// MessageDetail is a parsed inbox message.
type MessageDetail struct {
	MessageID string `json:"message_id"`
	ItemCode  string `json:"item_code"`
	Subject   string `json:"subject"`
	Content   string `json:"content"`
	FromName  string `json:"from_name,omitempty"`
	FromEmail string `json:"from_email,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Inbox messages quote their history below an "On ... wrote:" marker.
var quotedHistoryRes = []*regexp.Regexp{
	regexp.MustCompile(`(?is)\n\s*On\s+.+?\s+wrote:\s*\n`),
	regexp.MustCompile(`(?is)\n\s*On\s+.+?\s+at\s+.+?wrote:\s*\n`),
	regexp.MustCompile(`(?is)\n\s*-{2,}\s*On\s+.+?wrote:\s*-{2,}\s*\n`),
}

// GetMessageDetail fetches one message's content with quoted history
// stripped.
func (a *Adapter) GetMessageDetail(ctx context.Context, messageID, itemCode string) (*MessageDetail, error) {
	// The list view prefixes ids with "message_id"; the detail endpoint
	// wants the bare value.
	cleanID := strings.TrimPrefix(messageID, "message_id")

	res, err := a.client.Execute(ctx, "get_message_detail", map[string]string{
		"message_id": cleanID,
		"item_code":  itemCode,
	}, ContextGlobal)
	if err != nil {
		return nil, err
	}

	var payload struct {
		MessagePlain string `json:"message_plain"`
		Message      string `json:"message"`
		Subject      string `json:"subject"`
		FromEmail    string `json:"from_email"`
		FromName     string `json:"from_name"`
		TimeStamp    string `json:"time_stamp"`
	}
	if err := json.Unmarshal(res.JSON, &payload); err != nil {
		return nil, &Error{Kind: KindMalformedResponse, Op: "get_message_detail", Raw: truncate(res.JSON, 500), Err: err}
	}
	content := payload.MessagePlain
	if content == "" {
		content = payload.Message
	}
	for _, re := range quotedHistoryRes {
		if idx := re.FindStringIndex(content); idx != nil {
			content = strings.TrimSpace(content[:idx[0]])
			break
		}
	}
	return &MessageDetail{
		MessageID: cleanID,
		ItemCode:  itemCode,
		Subject:   payload.Subject,
		Content:   content,
		FromName:  payload.FromName,
		FromEmail: payload.FromEmail,
		Timestamp: payload.TimeStamp,
	}, nil
}

// AssignmentModal fetches the assignment form data (owners, stages,
// statuses, hidden identifiers, form token) for a thread.
func (a *Adapter) AssignmentModal(ctx context.Context, messageID, itemCode string) (*ModalData, error) {
	res, err := a.client.Execute(ctx, "assignment_modal", map[string]string{
		"message_id": messageID,
		"item_code":  itemCode,
	}, ContextGlobal)
	if err != nil {
		return nil, err
	}
	m := ParseAssignmentModal(res.RawHTML)
	return &m, nil
}

// AssignmentDefaults returns the backend's recommended stage and status
// for a contact.
func (a *Adapter) AssignmentDefaults(ctx context.Context, contactID string) (stage, status string, err error) {
	res, err := a.client.Execute(ctx, "assignment_defaults", map[string]string{
		"contact_id": contactID,
	}, ContextGlobal)
	if err != nil {
		return "", "", err
	}
	var payload struct {
		Stage  string `json:"stage"`
		Status string `json:"video_progress_status"`
	}
	if err := json.Unmarshal(res.JSON, &payload); err != nil {
		return "", "", &Error{Kind: KindMalformedResponse, Op: "assignment_defaults", Raw: truncate(res.JSON, 500), Err: err}
	}
	return payload.Stage, payload.Status, nil
}

// AssignRequest carries one thread assignment.
type AssignRequest struct {
	MessageID  string `json:"message_id"`
	ItemCode   string `json:"item_code"`
	OwnerID    string `json:"owner_id"`
	ContactID  string `json:"contact_id,omitempty"`
	MainID     string `json:"main_id,omitempty"`
	ContactFor string `json:"contact_for,omitempty"`
	Contact    string `json:"contact,omitempty"`
	Stage      string `json:"stage,omitempty"`
	Status     string `json:"status,omitempty"`
}

// AssignThread assigns an inbox thread to a video-team owner. The form
// token is scoped to this thread's assignment modal.
func (a *Adapter) AssignThread(ctx context.Context, req AssignRequest) error {
	res, err := a.client.Execute(ctx, "assign_thread", map[string]string{
		"message_id":  req.MessageID,
		"owner_id":    req.OwnerID,
		"contact_id":  req.ContactID,
		"main_id":     req.MainID,
		"contact_for": req.ContactFor,
		"contact":     req.Contact,
		"stage":       normalizeStage(req.Stage),
		"status":      req.Status,
	}, AssignContext(req.MessageID, req.ItemCode))
	if err != nil {
		return err
	}
	if ok, msg := jsonSuccess(res.JSON); !ok {
		return &Error{Kind: KindLegacyProtocolFailure, Op: "assign_thread", Raw: msg}
	}
	a.logger.Info("Assigned thread", "message_id", req.MessageID, "owner_id", req.OwnerID)
	return nil
}

// SendReply replies to an inbox thread. The reply token is scoped to the
// thread's composer page, and the quoted original rides below the reply.
func (a *Adapter) SendReply(ctx context.Context, messageID, itemCode, replyText string) error {
	detail, err := a.GetMessageDetail(ctx, messageID, itemCode)
	if err != nil {
		return err
	}
	replyMainID := detail.MessageID
	if replyMainID == "" {
		replyMainID = messageID
	}
	quoted := fmt.Sprintf(`<div id="previous_message%s">%s %s</div>`, messageID, detail.Timestamp, detail.Content)
	_, err = a.client.Execute(ctx, "send_reply", map[string]string{
		"message_id":    messageID,
		"reply_main_id": replyMainID,
		"subject":       "Re: " + detail.Subject,
		"message":       replyText + quoted,
	}, ReplyContext(messageID, itemCode))
	if err != nil {
		return err
	}
	a.logger.Info("Sent reply", "message_id", messageID)
	return nil
}

// --------------------------------------------------------------------------
// Contacts and identity
// --------------------------------------------------------------------------

// SearchContacts searches athletes or parents by name/email.
func (a *Adapter) SearchContacts(ctx context.Context, query, searchFor string) ([]SearchResult, error) {
	res, err := a.client.Execute(ctx, "search_contacts", map[string]string{
		"query":      query,
		"search_for": searchFor,
	}, ContextGlobal)
	if err != nil {
		return nil, err
	}
	return ParseContactRows(res.RawHTML), nil
}

// Resolve reconciles a search result's identifier namespaces.
func (a *Adapter) Resolve(ctx context.Context, sr SearchResult) (AthleteIdentity, error) {
	return a.resolver.Resolve(ctx, sr)
}

// --------------------------------------------------------------------------
// Video workflow
// --------------------------------------------------------------------------

// Seasons fetches the season choices for a video submission. All four
// identifying parameters must be present for the backend to answer with
// real options; a partial set yields an empty list by backend contract.
func (a *Adapter) Seasons(ctx context.Context, id AthleteIdentity, videoType string) ([]OptionRecord, error) {
	res, err := a.client.Execute(ctx, "fetch_seasons", map[string]string{
		"primary_id":  id.PrimaryID,
		"sport_alias": id.SportAlias,
		"video_type":  videoType,
		"main_id":     id.MainID,
	}, ContextGlobal)
	if err != nil {
		return nil, err
	}
	if res.Format == FormatHTMLOptions {
		return res.Records, nil
	}
	// Some deployments answer JSON despite return_type=html.
	var payload struct {
		Status string         `json:"status"`
		Data   []OptionRecord `json:"data"`
	}
	if err := json.Unmarshal(res.JSON, &payload); err != nil {
		return nil, &Error{Kind: KindMalformedResponse, Op: "fetch_seasons", Raw: truncate(res.JSON, 500), Err: err}
	}
	return payload.Data, nil
}

// VideoSubmission carries one career-video submit.
type VideoSubmission struct {
	Identity    AthleteIdentity `json:"identity"`
	VideoURL    string          `json:"video_url"`
	Source      string          `json:"source,omitempty"` // youtube or hudl
	VideoType   string          `json:"video_type"`
	Season      string          `json:"season,omitempty"` // "{level}:{id}" dropdown value
	AutoApprove bool            `json:"auto_approve,omitempty"`
}

// SubmitVideo posts a video onto the athlete's profile.
func (a *Adapter) SubmitVideo(ctx context.Context, sub VideoSubmission) error {
	params := map[string]string{
		"primary_id":   sub.Identity.PrimaryID,
		"main_id":      sub.Identity.MainID,
		"sport_alias":  sub.Identity.SportAlias,
		"video_url":    sub.VideoURL,
		"video_type":   sub.VideoType,
		"source":       sub.Source,
		"season_value": seasonValue(sub.Season),
	}
	if sub.AutoApprove {
		params["approve"] = "1"
	}
	res, err := a.client.Execute(ctx, "submit_video", params, ContextGlobal)
	if err != nil {
		return err
	}
	if ok, msg := jsonSuccess(res.JSON); !ok {
		return &Error{Kind: KindLegacyProtocolFailure, Op: "submit_video", Raw: msg}
	}
	a.logger.Info("Submitted video",
		"primary_id", sub.Identity.PrimaryID, "video_type", sub.VideoType)
	return nil
}

// UpdateStage moves a video task to a new progress stage.
func (a *Adapter) UpdateStage(ctx context.Context, videoMsgID, stage string) error {
	_, err := a.client.Execute(ctx, "update_stage", map[string]string{
		"video_msg_id": videoMsgID,
		"stage":        normalizeStage(stage),
	}, ContextGlobal)
	return err
}

// UpdateStatus sets a video task's progress status.
func (a *Adapter) UpdateStatus(ctx context.Context, videoMsgID, status string) error {
	_, err := a.client.Execute(ctx, "update_status", map[string]string{
		"video_msg_id": videoMsgID,
		"status":       status,
	}, ContextGlobal)
	return err
}

// UpdateDueDate sets a video task's due date (MM/DD/YYYY).
func (a *Adapter) UpdateDueDate(ctx context.Context, videoMsgID, dueDate string) error {
	_, err := a.client.Execute(ctx, "update_due_date", map[string]string{
		"video_msg_id": videoMsgID,
		"due_date":     dueDate,
	}, ContextGlobal)
	return err
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// The backend wants Title Case stage labels; callers may send the
// snake_case identifiers the clean API uses.
var stageLabels = map[string]string{
	"on_hold":         "On Hold",
	"awaiting_client": "Awaiting Client",
	"in_queue":        "In Queue",
	"done":            "Done",
}

func normalizeStage(stage string) string {
	if label, ok := stageLabels[stage]; ok {
		return label
	}
	return stage
}

// seasonValue extracts the numeric season id from a "{level}:{id}"
// dropdown value.
func seasonValue(season string) string {
	if idx := strings.LastIndex(season, ":"); idx >= 0 {
		return season[idx+1:]
	}
	return season
}

// jsonSuccess interprets a write acknowledgement, including the
// double-encoded shapes the normalizer has already flattened. An absent
// success field on a 200 counts as success — several endpoints
// acknowledge with arbitrary bodies.
func jsonSuccess(raw json.RawMessage) (bool, string) {
	if len(raw) == 0 {
		return true, ""
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return true, ""
	}
	ok, found, msg := successIn(obj)
	if !found {
		return true, ""
	}
	return ok, msg
}

func successIn(obj map[string]any) (ok, found bool, msg string) {
	if v, present := obj["success"]; present {
		if m, has := obj["message"].(string); has {
			msg = m
		}
		return v == true || v == "true", true, msg
	}
	for _, key := range []string{"data", "response"} {
		if inner, has := obj[key].(map[string]any); has {
			if ok, found, msg = successIn(inner); found {
				return ok, found, msg
			}
		}
	}
	return false, false, ""
}
