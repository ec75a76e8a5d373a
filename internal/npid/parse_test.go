package npid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const inboxFixture = `
<div class="msg-list">
  <div class="ImageProfile unread" id="message_id111" itemid="111" itemcode="abc" contacttask="901" athletemainid="4242">
    <span class="msg-sendr-name">Jane Smith</span>
    <span class="hidden">jane@example.test</span>
    <span class="tit_line1">New highlight film</span>
    <span class="tit_univ">Here is the film. On Mon Jan 6 Prospect ID Video Team wrote: thanks for the upload</span>
    <span class="date_css">Jan 6</span>
    <i class="fa fa-plus-circle"></i>
    <div class="attachment-item" data-filename="film.mp4" data-url="/download/film.mp4"></div>
  </div>
  <div class="ImageProfile" itemid="222" itemcode="def">
    <span class="tit_line1">Question about editing</span>
  </div>
  <div class="ImageProfile">ignored: no itemid</div>
</div>`

func TestParseInboxThreads(t *testing.T) {
	threads := ParseInboxThreads(inboxFixture)
	require.Len(t, threads, 2)

	first := threads[0]
	assert.Equal(t, "message_id111", first.ID)
	assert.Equal(t, "abc", first.ItemCode)
	assert.Equal(t, "901", first.ContactID)
	assert.Equal(t, "4242", first.AthleteMainID)
	assert.Equal(t, "Jane Smith", first.Name)
	assert.Equal(t, "jane@example.test", first.Email)
	assert.Equal(t, "New highlight film", first.Subject)
	assert.True(t, first.CanAssign)
	assert.True(t, first.Unread)
	require.Len(t, first.Attachments, 1)
	assert.Equal(t, "film.mp4", first.Attachments[0].FileName)

	// Quoted history is stripped from the preview.
	assert.Equal(t, "Here is the film.", first.Preview)

	second := threads[1]
	assert.Equal(t, "222", second.ID, "itemid stands in when id is absent")
	assert.Equal(t, "Unknown", second.Name)
	assert.False(t, second.CanAssign)
}

func TestParseInboxThreadsEmpty(t *testing.T) {
	assert.Empty(t, ParseInboxThreads(`<div class="msg-list"></div>`))
}

const contactsFixture = `
<table><tbody>
  <tr>
    <td><input type="checkbox" class="contactselected" contactid="100" athlete_main_id="4242" contactname="Jane Smith"></td>
    <td>4.5</td>
    <td>2026</td>
    <td>TX</td>
    <td>Baseball</td>
  </tr>
  <tr>
    <td><input type="checkbox" class="contactselected" contactid="101" contactname="Bob Jones"></td>
    <td></td>
    <td>2027</td>
    <td>CA</td>
    <td>Football</td>
  </tr>
  <tr><td>header row without input</td></tr>
</tbody></table>`

func TestParseContactRows(t *testing.T) {
	rows := ParseContactRows(contactsFixture)
	require.Len(t, rows, 2)

	assert.Equal(t, "100", rows[0].PrimaryID)
	assert.Equal(t, "4242", rows[0].MainID)
	assert.Equal(t, "Jane Smith", rows[0].Name)
	assert.Equal(t, "2026", rows[0].GradYear)
	assert.Equal(t, "TX", rows[0].State)
	assert.Equal(t, "baseball", rows[0].SportAlias)

	assert.Equal(t, "101", rows[1].PrimaryID)
	assert.Empty(t, rows[1].MainID, "missing main id stays empty for the resolver to handle")
}

const modalFixture = `
<form>
  <input type="hidden" name="_token" value="modal-token">
  <input type="hidden" name="contact" value="jane@example.test">
  <input type="hidden" name="contact_task" value=" 901 ">
  <input type="hidden" name="athlete_main_id" value="4242">
  <input type="hidden" name="messageid" value="111">
  <select name="contactfor">
    <option value="athlete" selected="selected">Athlete</option>
    <option value="parent">Parent</option>
  </select>
  <select name="videoscoutassignedto">
    <option value="">Select editor</option>
    <option value="77">Alex</option>
    <option value="78">Sam</option>
  </select>
  <select name="video_progress_stage">
    <option value="In Queue">In Queue</option>
    <option value="Done">Done</option>
  </select>
  <select name="video_progress_status">
    <option value="HUDL">HUDL</option>
  </select>
</form>`

func TestParseAssignmentModal(t *testing.T) {
	m := ParseAssignmentModal(modalFixture)

	assert.Equal(t, "modal-token", m.FormToken)
	assert.Equal(t, "jane@example.test", m.Contact)
	assert.Equal(t, "901", m.ContactTask, "hidden values arrive padded")
	assert.Equal(t, "4242", m.AthleteMainID)
	assert.Equal(t, "111", m.MessageID)
	assert.Equal(t, "athlete", m.ContactFor)

	require.Len(t, m.Owners, 2)
	assert.Equal(t, "77", m.Owners[0].Value)
	assert.Equal(t, "Alex", m.Owners[0].Label)
	require.Len(t, m.Stages, 2)
	require.Len(t, m.Statuses, 1)
}

func TestStripReplyChainCapsLength(t *testing.T) {
	long := strings.Repeat("x", 500)
	assert.Len(t, stripReplyChain(long), 300)
}

func TestStripReplyChainNoMarker(t *testing.T) {
	assert.Equal(t, "plain preview", stripReplyChain("  plain preview "))
}
