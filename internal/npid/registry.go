package npid

// The operation registry is the single source of truth for the backend's
// wire format. Duplicated fields, inconsistent casing, bracketed nested
// keys, and always-empty placeholders all live in this table — when the
// backend renames a field, only this table changes.

// Hint describes the response shape an operation expects. It drives both
// failure-signature detection and normalization.
type Hint string

const (
	// HintJSON: the endpoint must return JSON; an HTML body is a failure
	// signature (typically a login page served with status 200).
	HintJSON Hint = "json"
	// HintNestedJSON: JSON whose payload may arrive double-encoded as a
	// string field.
	HintNestedJSON Hint = "nested-json"
	// HintHTML: an HTML fragment; option-shaped elements are extracted.
	HintHTML Hint = "html"
	// HintEmptyOK: the endpoint returns HTTP 200 with an empty body on
	// success. Emptiness is not a failure signal for these operations.
	HintEmptyOK Hint = "empty-ok"
)

// Field maps one caller parameter to one wire field.
type Field struct {
	Name      string // exact wire field name
	From      string // caller parameter key; empty means constant-only
	Const     string // value used when the parameter is absent or empty
	Required  bool   // reject translation when the resolved value is empty
	OmitEmpty bool   // drop the field entirely when the value is empty
}

// Operation is one registered backend operation. PathTemplate segments
// of the form {param} are filled from caller parameters.
type Operation struct {
	Name           string
	Method         string
	PathTemplate   string
	Query          []Field
	Form           []Field
	Hint           Hint
	RequiresToken  bool // form carries the CSRF token under "_token"
	NeedsAPIKey    bool // fetch_seasons is the only operation taking api_key
	XMLHTTPRequest bool // backend branches on X-Requested-With for these
}

const (
	csrfField    = "_token"
	apiKeyField  = "api_key"
	userTimezone = "America/New_York"
)

var operations = map[string]Operation{
	"search_contacts": {
		Name:         "search_contacts",
		Method:       "GET",
		PathTemplate: "/template/calendaraccess/contactslist",
		Query: []Field{
			{Name: "search", From: "query", Required: true},
			{Name: "searchfor", From: "search_for", Const: "athlete"},
		},
		Hint: HintHTML,
	},
	"list_inbox": {
		Name:         "list_inbox",
		Method:       "GET",
		PathTemplate: "/rulestemplates/template/videoteammessagelist",
		Query: []Field{
			{Name: "athleteid", Const: ""},
			{Name: "user_timezone", Const: userTimezone},
			{Name: "type", Const: "inbox"},
			{Name: "is_mobile", Const: ""},
			{Name: "filter_self", Const: "Me/Un"},
			{Name: "refresh", Const: "false"},
			{Name: "page_start_number", From: "page", Const: "1"},
			{Name: "search_text", From: "search", Const: ""},
		},
		Hint: HintHTML,
	},
	"get_message_detail": {
		Name:         "get_message_detail",
		Method:       "GET",
		PathTemplate: "/rulestemplates/template/videoteammessage_subject",
		Query: []Field{
			{Name: "message_id", From: "message_id", Required: true},
			{Name: "itemcode", From: "item_code", Required: true},
			{Name: "type", Const: "inbox"},
			{Name: "user_timezone", Const: userTimezone},
			{Name: "filter_self", Const: "Me/Un"},
		},
		Hint:           HintJSON,
		XMLHTTPRequest: true,
	},
	"assignment_modal": {
		Name:         "assignment_modal",
		Method:       "GET",
		PathTemplate: "/rulestemplates/template/assignemailtovideoteam",
		Query: []Field{
			{Name: "message_id", From: "message_id", Required: true},
			{Name: "itemcode", From: "item_code", Required: true},
		},
		Hint: HintHTML,
	},
	"assignment_defaults": {
		Name:         "assignment_defaults",
		Method:       "GET",
		PathTemplate: "/rulestemplates/messageassigninfo",
		Query: []Field{
			{Name: "contactid", From: "contact_id", Required: true},
		},
		Hint:           HintJSON,
		XMLHTTPRequest: true,
	},
	// The assignment form wants several values twice under near-duplicate
	// names; the backend reads both depending on code path.
	"assign_thread": {
		Name:         "assign_thread",
		Method:       "POST",
		PathTemplate: "/videoteammsg/assignvideoteam",
		Form: []Field{
			{Name: "messageid", From: "message_id", Required: true},
			{Name: "videoscoutassignedto", From: "owner_id", Required: true},
			{Name: "contact_task", From: "contact_id"},
			{Name: "contacttask", From: "contact_id"},
			{Name: "athlete_main_id", From: "main_id"},
			{Name: "athletemainid", From: "main_id"},
			{Name: "contactfor", From: "contact_for", Const: "athlete"},
			{Name: "contact", From: "contact"},
			{Name: "video_progress_stage", From: "stage"},
			{Name: "videoprogressstage", From: "stage"},
			{Name: "video_progress_status", From: "status"},
			{Name: "videoprogressstatus", From: "status"},
		},
		Hint:          HintEmptyOK,
		RequiresToken: true,
	},
	"update_stage": {
		Name:         "update_stage",
		Method:       "POST",
		PathTemplate: "/API/scout-api/video-stage",
		Form: []Field{
			{Name: "video_msg_id", From: "video_msg_id", Required: true},
			{Name: "video_progress_stage", From: "stage", Required: true},
		},
		Hint:          HintEmptyOK,
		RequiresToken: true,
	},
	"update_status": {
		Name:         "update_status",
		Method:       "POST",
		PathTemplate: "/API/scout-api/video-status",
		Form: []Field{
			{Name: "video_msg_id", From: "video_msg_id", Required: true},
			{Name: "video_progress_status", From: "status", Required: true},
		},
		Hint:          HintEmptyOK,
		RequiresToken: true,
	},
	"update_due_date": {
		Name:         "update_due_date",
		Method:       "POST",
		PathTemplate: "/tasks/videoduedate",
		Form: []Field{
			{Name: "video_msg_id", From: "video_msg_id", Required: true},
			{Name: "video_due_date", From: "due_date", Required: true}, // MM/DD/YYYY
		},
		Hint:          HintEmptyOK,
		RequiresToken: true,
	},
	// Verified against live captures: athleteviewtoken and newVideoSeason
	// are always sent empty, and the season dropdown value lands in the
	// bracketed schoolinfo field instead.
	"submit_video": {
		Name:         "submit_video",
		Method:       "POST",
		PathTemplate: "/athlete/update/careervideos/{primary_id}",
		Form: []Field{
			{Name: "athleteviewtoken", Const: ""},
			{Name: "schoolinfo[add_video_season]", From: "season_value"},
			{Name: "sport_alias", From: "sport_alias", Required: true},
			{Name: "url_source", From: "source", Const: "youtube"},
			{Name: "newVideoLink", From: "video_url", Required: true},
			{Name: "videoType", From: "video_type", Required: true},
			{Name: "newVideoSeason", Const: ""},
			{Name: "athlete_main_id", From: "main_id", Required: true},
			{Name: "approve_video", From: "approve", OmitEmpty: true},
		},
		Hint:          HintNestedJSON,
		RequiresToken: true,
	},
	// All four parameters pass through unchecked: the backend answers a
	// partial parameter set with a placeholder-only option list rather
	// than an error. That is a backend contract quirk, not an adapter
	// bug — callers see an empty list, never a failure.
	"fetch_seasons": {
		Name:         "fetch_seasons",
		Method:       "POST",
		PathTemplate: "/API/scout-api/video-seasons-by-video-type",
		Form: []Field{
			{Name: "athlete_id", From: "primary_id", OmitEmpty: true},
			{Name: "sport_alias", From: "sport_alias", OmitEmpty: true},
			{Name: "video_type", From: "video_type", OmitEmpty: true},
			{Name: "athlete_main_id", From: "main_id", OmitEmpty: true},
			{Name: "return_type", Const: "html"},
		},
		Hint:           HintHTML,
		RequiresToken:  true,
		NeedsAPIKey:    true,
		XMLHTTPRequest: true,
	},
	"send_reply": {
		Name:         "send_reply",
		Method:       "POST",
		PathTemplate: "/videoteammsg/sendmessage",
		Form: []Field{
			{Name: "message_type", Const: "send"},
			{Name: "reply_message_id", From: "message_id", Required: true},
			{Name: "reply_main_id", From: "reply_main_id", Required: true},
			{Name: "draftid", Const: ""},
			{Name: "message_subject", From: "subject", Required: true},
			{Name: "message_message", From: "message", Required: true},
		},
		Hint:          HintEmptyOK,
		RequiresToken: true,
	},
}

// Lookup returns the registered operation mapping for name.
func Lookup(name string) (Operation, bool) {
	op, ok := operations[name]
	return op, ok
}

// OperationNames returns all registered operation names, for diagnostics
// and CLI help.
func OperationNames() []string {
	names := make([]string, 0, len(operations))
	for name := range operations {
		names = append(names, name)
	}
	return names
}
