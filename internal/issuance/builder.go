package issuance

import (
	"fmt"

	"github.com/studentid/walletpass/internal/pkpass"
)

// Thumbnail file names; the student photo is attached at both resolutions.
const (
	thumbnailFile   = "thumbnail.png"
	thumbnail2xFile = "thumbnail@2x.png"
)

// PassIdentifiers are derived per request before the pass is built.
type PassIdentifiers struct {
	SerialNumber        string
	AuthenticationToken string
}

// PassBuilder composes, signs and serializes a student ID pass.
type PassBuilder interface {
	BuildPass(req PassRequest, ids PassIdentifiers, photo []byte) ([]byte, error)
}

// TemplateBuilder builds passes from a pass model and a signing identity loaded once at startup.
type TemplateBuilder struct {
	template *pkpass.Template
	identity *pkpass.SigningIdentity
}

func NewTemplateBuilder(template *pkpass.Template, identity *pkpass.SigningIdentity) (*TemplateBuilder, error) {
	if template == nil {
		return nil, fmt.Errorf("pass template is required")
	}
	if identity == nil {
		return nil, fmt.Errorf("signing identity is required")
	}
	return &TemplateBuilder{template: template, identity: identity}, nil
}

// LoadTemplateBuilder reads the pass model directory and the signing certificates.
func LoadTemplateBuilder(modelDir, wwdrPath, certPath, keyPath, passphrase string) (*TemplateBuilder, error) {
	template, err := pkpass.LoadTemplate(modelDir)
	if err != nil {
		return nil, err
	}

	identity, err := pkpass.LoadSigningIdentity(wwdrPath, certPath, keyPath, passphrase)
	if err != nil {
		return nil, err
	}
	return NewTemplateBuilder(template, identity)
}

// ComposePass fills the template with the submission. The photo is attached as the thumbnail.
func (b *TemplateBuilder) ComposePass(req PassRequest, ids PassIdentifiers, photo []byte) (*pkpass.Pass, error) {
	expiration := ExpirationText(req.SchoolYear)
	pass := b.template.NewPass(ids.SerialNumber, ids.AuthenticationToken)

	pass.SetBarcode(pkpass.Barcode{
		Format:          pkpass.BarcodeCode128,
		Message:         req.BarcodeData,
		MessageEncoding: "utf-8",
		AltText:         expiration,
	})

	pass.AddPrimaryField(pkpass.Field{Key: "name", Label: "Student Identification", Value: req.Name})

	pass.AddSecondaryField(pkpass.Field{Key: "grade", Label: "Grade", Value: req.GradeLevel, TextAlignment: pkpass.AlignNatural})
	pass.AddSecondaryField(pkpass.Field{Key: "class", Label: "Class", Value: req.GraduationYear, TextAlignment: pkpass.AlignRight})

	pass.AddAuxiliaryField(pkpass.Field{Key: "advisory", Label: "Advisory", Value: req.Advisory})
	pass.AddAuxiliaryField(pkpass.Field{Key: "studentID", Label: "Student ID #", Value: req.StudentID, TextAlignment: pkpass.AlignCenter})
	pass.AddAuxiliaryField(pkpass.Field{Key: "schoolYear", Label: "School Year", Value: req.SchoolYear, TextAlignment: pkpass.AlignRight})

	pass.AddBackField(pkpass.Field{Key: "expiration", Label: expiration, Value: "", TextAlignment: pkpass.AlignCenter})

	for _, name := range []string{thumbnailFile, thumbnail2xFile} {
		if err := pass.AddFile(name, photo); err != nil {
			return nil, err
		}
	}
	return pass, nil
}

func (b *TemplateBuilder) BuildPass(req PassRequest, ids PassIdentifiers, photo []byte) ([]byte, error) {
	pass, err := b.ComposePass(req, ids, photo)
	if err != nil {
		return nil, err
	}
	return pass.Serialize(b.identity)
}
