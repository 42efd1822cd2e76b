package handler

import "reconciler/internal/contact/models"

// ContactResponse is the consolidated contact as rendered on the wire.
// primaryContatctId keeps the field name existing clients depend on.
type ContactResponse struct {
	PrimaryContactID    int64    `json:"primaryContatctId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIDs []int64  `json:"secondaryContactIds"`
}

// ContactEnvelope wraps the contact under the "contact" key.
type ContactEnvelope struct {
	Contact ContactResponse `json:"contact"`
}

func toContactEnvelope(view *models.IdentityView) ContactEnvelope {
	resp := ContactResponse{
		PrimaryContactID:    view.PrimaryID.Int64(),
		Emails:              append([]string{}, view.Emails...),
		PhoneNumbers:        append([]string{}, view.Phones...),
		SecondaryContactIDs: make([]int64, 0, len(view.SecondaryIDs)),
	}
	for _, sid := range view.SecondaryIDs {
		resp.SecondaryContactIDs = append(resp.SecondaryContactIDs, sid.Int64())
	}
	return ContactEnvelope{Contact: resp}
}
