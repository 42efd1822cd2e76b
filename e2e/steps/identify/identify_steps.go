package identify

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GET(path string) error
	LastStatus() int
	DecodeLast(v any) error
	Token() string
}

type contactResponse struct {
	Contact struct {
		PrimaryContactID    int64    `json:"primaryContatctId"`
		Emails              []string `json:"emails"`
		PhoneNumbers        []string `json:"phoneNumbers"`
		SecondaryContactIDs []int64  `json:"secondaryContactIds"`
	} `json:"contact"`
}

// RegisterSteps registers identify-related step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &identifySteps{tc: tc, aliases: map[string]int64{}}

	ctx.Step(`^I identify with email "([^"]*)" and phone "([^"]*)"$`, steps.identifyBoth)
	ctx.Step(`^I identify with email "([^"]*)"$`, steps.identifyEmail)
	ctx.Step(`^I identify with phone "([^"]*)"$`, steps.identifyPhone)
	ctx.Step(`^I identify with nothing$`, steps.identifyNothing)
	ctx.Step(`^I look up the contact "([^"]*)"$`, steps.lookUp)

	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^I remember the primary contact as "([^"]*)"$`, steps.rememberPrimary)
	ctx.Step(`^the primary contact should be "([^"]*)"$`, steps.primaryShouldBe)
	ctx.Step(`^the emails should be "([^"]*)"$`, steps.emailsShouldBe)
	ctx.Step(`^the phone numbers should be "([^"]*)"$`, steps.phonesShouldBe)
	ctx.Step(`^there should be (\d+) secondary contacts?$`, steps.secondaryCountShouldBe)
}

type identifySteps struct {
	tc      TestContext
	aliases map[string]int64
	last    *contactResponse
}

// Scenario values are namespaced with the scenario token so runs never
// collide: "lorraine@hillvalley.edu" becomes "lorraine+<token>@hillvalley.edu".
func (s *identifySteps) email(v string) string {
	local, domain, ok := strings.Cut(v, "@")
	if !ok {
		return v
	}
	return local + "+" + s.tc.Token() + "@" + domain
}

func (s *identifySteps) phone(v string) string {
	return v + "-" + s.tc.Token()
}

func (s *identifySteps) plain(values []string) string {
	out := make([]string, len(values))
	for i, v := range values {
		v = strings.Replace(v, "+"+s.tc.Token()+"@", "@", 1)
		out[i] = strings.TrimSuffix(v, "-"+s.tc.Token())
	}
	return strings.Join(out, ",")
}

func (s *identifySteps) post(body map[string]any) error {
	s.last = nil
	if err := s.tc.POST("/identify", body); err != nil {
		return err
	}
	return s.decode()
}

func (s *identifySteps) decode() error {
	if s.tc.LastStatus() != 200 {
		return nil
	}
	var resp contactResponse
	if err := s.tc.DecodeLast(&resp); err != nil {
		return err
	}
	s.last = &resp
	return nil
}

func (s *identifySteps) identifyBoth(ctx context.Context, email, phone string) error {
	return s.post(map[string]any{"email": s.email(email), "phoneNumber": s.phone(phone)})
}

func (s *identifySteps) identifyEmail(ctx context.Context, email string) error {
	return s.post(map[string]any{"email": s.email(email)})
}

func (s *identifySteps) identifyPhone(ctx context.Context, phone string) error {
	return s.post(map[string]any{"phoneNumber": s.phone(phone)})
}

func (s *identifySteps) identifyNothing(ctx context.Context) error {
	return s.post(map[string]any{"email": nil, "phoneNumber": nil})
}

func (s *identifySteps) lookUp(ctx context.Context, alias string) error {
	contactID, ok := s.aliases[alias]
	if !ok {
		return fmt.Errorf("unknown contact alias %q", alias)
	}
	s.last = nil
	if err := s.tc.GET(fmt.Sprintf("/contacts/%d", contactID)); err != nil {
		return err
	}
	return s.decode()
}

func (s *identifySteps) statusShouldBe(ctx context.Context, status int) error {
	if got := s.tc.LastStatus(); got != status {
		return fmt.Errorf("expected status %d, got %d", status, got)
	}
	return nil
}

func (s *identifySteps) contact() (*contactResponse, error) {
	if s.last == nil {
		return nil, fmt.Errorf("no successful contact response (status %d)", s.tc.LastStatus())
	}
	return s.last, nil
}

func (s *identifySteps) rememberPrimary(ctx context.Context, alias string) error {
	c, err := s.contact()
	if err != nil {
		return err
	}
	s.aliases[alias] = c.Contact.PrimaryContactID
	return nil
}

func (s *identifySteps) primaryShouldBe(ctx context.Context, alias string) error {
	c, err := s.contact()
	if err != nil {
		return err
	}
	if want := s.aliases[alias]; c.Contact.PrimaryContactID != want {
		return fmt.Errorf("expected primary %d (%s), got %d", want, alias, c.Contact.PrimaryContactID)
	}
	return nil
}

func (s *identifySteps) emailsShouldBe(ctx context.Context, want string) error {
	c, err := s.contact()
	if err != nil {
		return err
	}
	if got := s.plain(c.Contact.Emails); got != want {
		return fmt.Errorf("expected emails %q, got %q", want, got)
	}
	return nil
}

func (s *identifySteps) phonesShouldBe(ctx context.Context, want string) error {
	c, err := s.contact()
	if err != nil {
		return err
	}
	if got := s.plain(c.Contact.PhoneNumbers); got != want {
		return fmt.Errorf("expected phone numbers %q, got %q", want, got)
	}
	return nil
}

func (s *identifySteps) secondaryCountShouldBe(ctx context.Context, n int) error {
	c, err := s.contact()
	if err != nil {
		return err
	}
	if len(c.Contact.SecondaryContactIDs) != n {
		return fmt.Errorf("expected %d secondary contacts, got %v", n, c.Contact.SecondaryContactIDs)
	}
	if slices.Contains(c.Contact.SecondaryContactIDs, c.Contact.PrimaryContactID) {
		return fmt.Errorf("primary %d listed among its secondaries", c.Contact.PrimaryContactID)
	}
	return nil
}
