package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"mailer/internal/mailerr"
	"mailer/internal/rowjoin"
	"mailer/pkg/models"
)

// MemoryStore keeps everything in process memory. Provider reads go through
// the same join hydration as MySQLStore.
type MemoryStore struct {
	mu sync.RWMutex

	messages  map[int64]models.Message
	providers map[int64]models.Provider
	templates map[int64]models.Template

	nextMessageID  int64
	nextProviderID int64
	nextSettingsID int64
	nextTemplateID int64
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages:  make(map[int64]models.Message),
		providers: make(map[int64]models.Provider),
		templates: make(map[int64]models.Template),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) InsertMessage(ctx context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextMessageID++
	m.ID = s.nextMessageID
	s.messages[m.ID] = cloneMessage(m)
	return nil
}

func (s *MemoryStore) UpdateMessage(ctx context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.messages[m.ID]; !exists {
		return mailerr.NotFound("message %d not found", m.ID)
	}
	s.messages[m.ID] = cloneMessage(m)
	return nil
}

func (s *MemoryStore) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.messages[id]
	if !exists {
		return nil, mailerr.NotFound("message %d not found", id)
	}
	out := cloneMessage(&m)
	return &out, nil
}

func (s *MemoryStore) DueMessages(ctx context.Context, now time.Time) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*models.Message
	for _, id := range s.sortedMessageIDs() {
		m := s.messages[id]
		if m.Status != models.StatusPending {
			continue
		}
		if m.RetryAfter != nil && m.RetryAfter.After(now) {
			continue
		}
		out := cloneMessage(&m)
		due = append(due, &out)
	}
	return due, nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, offset, limit int) ([]*models.Message, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.sortedMessageIDs()
	total := int64(len(ids))

	page := []*models.Message{}
	for i := len(ids) - 1 - offset; i >= 0 && len(page) < limit; i-- {
		m := s.messages[ids[i]]
		out := cloneMessage(&m)
		page = append(page, &out)
	}
	return page, total, nil
}

func (s *MemoryStore) sortedMessageIDs() []int64 {
	ids := make([]int64, 0, len(s.messages))
	for id := range s.messages {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *MemoryStore) Providers(ctx context.Context, activeOnly bool) ([]*models.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.joinProviders(func(p models.Provider) bool { return !activeOnly || p.Active })
}

func (s *MemoryStore) Provider(ctx context.Context, id int64) (*models.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	providers, err := s.joinProviders(func(p models.Provider) bool { return p.ID == id })
	if err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		return nil, mailerr.NotFound("transport %d not found", id)
	}
	return providers[0], nil
}

// joinProviders renders the selected providers as the rows of the provider
// LEFT JOIN and hydrates them.
func (s *MemoryStore) joinProviders(keep func(models.Provider) bool) ([]*models.Provider, error) {
	ids := make([]int64, 0, len(s.providers))
	for id, p := range s.providers {
		if keep(p) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	rows := make([]rowjoin.Row, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, providerRow(s.providers[id]))
	}
	providers, err := hydrateProviders(rows)
	if err != nil {
		return nil, mailerr.Wrap(mailerr.KindInternal, err, "failed to hydrate providers")
	}
	return providers, nil
}

func providerRow(p models.Provider) rowjoin.Row {
	row := rowjoin.Row{
		"t": {
			"id": p.ID, "name": p.Name, "type": string(p.Type), "active": p.Active,
			"weight": p.Weight, "is_default": p.Default, "domain": p.Domain,
		},
		"smtp": {"id": nil, "provider_id": nil},
		"mg":   {"id": nil, "provider_id": nil},
		"sib":  {"id": nil, "provider_id": nil},
	}
	if p.SMTP != nil {
		row["smtp"] = rowjoin.Fragment{
			"id": p.SMTP.ID, "provider_id": p.ID, "host": p.SMTP.Host, "port": p.SMTP.Port,
			"user": p.SMTP.User, "pass": p.SMTP.Pass, "secure": p.SMTP.Secure,
		}
	}
	if p.Mailgun != nil {
		row["mg"] = rowjoin.Fragment{
			"id": p.Mailgun.ID, "provider_id": p.ID, "api_key": p.Mailgun.APIKey,
			"host": p.Mailgun.Host, "domain": p.Mailgun.Domain,
		}
	}
	if p.SendInBlue != nil {
		row["sib"] = rowjoin.Fragment{
			"id": p.SendInBlue.ID, "provider_id": p.ID, "api_key": p.SendInBlue.APIKey, "api_url": p.SendInBlue.APIURL,
		}
	}
	return row
}

func (s *MemoryStore) CountProviders(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.providers)), nil
}

func (s *MemoryStore) InsertProvider(ctx context.Context, p *models.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextProviderID++
	p.ID = s.nextProviderID
	s.assignSettingsID(p)
	s.providers[p.ID] = s.settingsOnly(p)
	return nil
}

func (s *MemoryStore) UpdateProvider(ctx context.Context, p *models.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.providers[p.ID]; !exists {
		return mailerr.NotFound("transport %d not found", p.ID)
	}
	s.assignSettingsID(p)
	s.providers[p.ID] = s.settingsOnly(p)
	return nil
}

// settingsOnly copies p keeping only the settings row matching its type, as
// the tables would.
func (s *MemoryStore) settingsOnly(p *models.Provider) models.Provider {
	out := *p
	out.SMTP, out.Mailgun, out.SendInBlue = nil, nil, nil
	switch p.Type {
	case models.ProviderSMTP:
		if p.SMTP != nil {
			settings := *p.SMTP
			out.SMTP = &settings
		}
	case models.ProviderMailgun:
		if p.Mailgun != nil {
			settings := *p.Mailgun
			out.Mailgun = &settings
		}
	case models.ProviderSendInBlue:
		if p.SendInBlue != nil {
			settings := *p.SendInBlue
			out.SendInBlue = &settings
		}
	}
	return out
}

func (s *MemoryStore) assignSettingsID(p *models.Provider) {
	s.nextSettingsID++
	switch {
	case p.Type == models.ProviderSMTP && p.SMTP != nil:
		p.SMTP.ID, p.SMTP.ProviderID = s.nextSettingsID, p.ID
	case p.Type == models.ProviderMailgun && p.Mailgun != nil:
		p.Mailgun.ID, p.Mailgun.ProviderID = s.nextSettingsID, p.ID
	case p.Type == models.ProviderSendInBlue && p.SendInBlue != nil:
		p.SendInBlue.ID, p.SendInBlue.ProviderID = s.nextSettingsID, p.ID
	}
}

func (s *MemoryStore) DeleteProvider(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.providers[id]; !exists {
		return mailerr.NotFound("transport %d not found", id)
	}
	delete(s.providers, id)
	return nil
}

func (s *MemoryStore) ProviderStats(ctx context.Context, start, end *time.Time) ([]models.ProviderStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.providers))
	for id := range s.providers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	index := make(map[int64]*models.ProviderStats, len(ids))
	stats := make([]models.ProviderStats, len(ids))
	for i, id := range ids {
		stats[i] = models.ProviderStats{ProviderID: id, Name: s.providers[id].Name}
		index[id] = &stats[i]
	}

	for _, m := range s.messages {
		if m.TransportID == nil {
			continue
		}
		if start != nil && m.Created.Before(*start) {
			continue
		}
		if end != nil && !m.Created.Before(*end) {
			continue
		}
		st, ok := index[*m.TransportID]
		if !ok {
			continue
		}
		switch m.Status {
		case models.StatusSent:
			st.Sent++
		case models.StatusFailed:
			st.Failed++
		case models.StatusPending:
			st.Pending++
		}
	}
	return stats, nil
}

func (s *MemoryStore) Templates(ctx context.Context) ([]*models.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	templates := make([]*models.Template, 0, len(s.templates))
	for _, t := range s.templates {
		t := t
		templates = append(templates, &t)
	}
	sort.Slice(templates, func(i, j int) bool {
		if templates[i].Name != templates[j].Name {
			return templates[i].Name < templates[j].Name
		}
		return templates[i].Language < templates[j].Language
	})
	return templates, nil
}

func (s *MemoryStore) Template(ctx context.Context, name, language string) (*models.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.findTemplate(name, language); ok {
		return &t, nil
	}
	return nil, mailerr.NotFound("template '%s' with language '%s' not found", name, language)
}

func (s *MemoryStore) findTemplate(name, language string) (models.Template, bool) {
	for _, t := range s.templates {
		if t.Name == name && t.Language == language {
			return t, true
		}
	}
	return models.Template{}, false
}

func (s *MemoryStore) InsertTemplate(ctx context.Context, t *models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.findTemplate(t.Name, t.Language); exists {
		return mailerr.New(mailerr.KindConflict, "template '%s' with language '%s' already exists", t.Name, t.Language)
	}
	s.nextTemplateID++
	t.ID = s.nextTemplateID
	s.templates[t.ID] = *t
	return nil
}

func (s *MemoryStore) UpdateTemplate(ctx context.Context, t *models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.findTemplate(t.Name, t.Language)
	if !ok {
		return mailerr.NotFound("template '%s' with language '%s' not found", t.Name, t.Language)
	}
	t.ID = existing.ID
	s.templates[t.ID] = *t
	return nil
}

func (s *MemoryStore) DeleteTemplate(ctx context.Context, name, language string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.findTemplate(name, language)
	if !ok {
		return mailerr.NotFound("template '%s' with language '%s' not found", name, language)
	}
	delete(s.templates, existing.ID)
	return nil
}

func cloneMessage(m *models.Message) models.Message {
	out := *m
	if m.Error != nil {
		v := *m.Error
		out.Error = &v
	}
	if m.Sent != nil {
		v := *m.Sent
		out.Sent = &v
	}
	if m.RetryAfter != nil {
		v := *m.RetryAfter
		out.RetryAfter = &v
	}
	if m.TransportID != nil {
		v := *m.TransportID
		out.TransportID = &v
	}
	return out
}
