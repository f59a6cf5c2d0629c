package notify

import (
	"bytes"
	"fmt"
	"text/template"

	"courtbook/internal/models"
)

const brand = "Easy Sport Book"

type message struct {
	Subject string
	Body    string
}

type copyText struct {
	event string
	title string
	text  string
}

var clientCopy = map[models.EventKind]copyText{
	models.EventCreatedConfirmed: {
		event: "Reserva confirmada",
		title: "¡Tu cancha fue reservada con éxito!",
		text:  "Tu reserva quedó confirmada. Te esperamos.",
	},
	models.EventCreatedPending: {
		event: "Solicitud recibida",
		title: "Solicitud de reserva enviada",
		text:  "Recibimos tu solicitud. La sucursal debe aprobarla y te avisaremos por este medio.",
	},
	models.EventConfirmed: {
		event: "Reserva aprobada",
		title: "¡Tu reserva ha sido confirmada!",
		text:  "La sucursal aprobó tu solicitud.",
	},
	models.EventRejected: {
		event: "Reserva rechazada",
		title: "Actualización sobre tu reserva (Rechazada)",
		text:  "Lamentablemente la sucursal no pudo aceptar tu solicitud.",
	},
	models.EventCancelled: {
		event: "Reserva cancelada",
		title: "Tu reserva fue cancelada",
		text:  "La reserva indicada fue cancelada.",
	},
}

var adminCopy = map[models.EventKind]copyText{
	models.EventCreatedConfirmed: {
		event: "Nueva reserva",
		title: "Nueva reserva confirmada",
		text:  "Se registró una reserva confirmada automáticamente.",
	},
	models.EventCreatedPending: {
		event: "Nueva solicitud",
		title: "Nueva solicitud pendiente de aprobación",
		text:  "Hay una solicitud de reserva esperando tu aprobación.",
	},
}

var bodyTmpl = template.Must(template.New("body").Parse(`Hola {{.Name}},

{{.Title}}
{{.Text}}

Reserva #{{.ID}}
Sucursal: {{.Branch}}
Cancha: {{.Resource}}
Fecha: {{.Date}}
Horario: {{.From}} a {{.To}}
Total: {{.Price}} {{.Currency}}
{{- if .Client}}
Cliente: {{.Client}}
{{- end}}
{{- if .Reason}}
Motivo: {{.Reason}}
{{- end}}
{{- if .Link}}

{{.Link}}
{{- end}}

{{.Brand}}
`))

type bodyData struct {
	Name     string
	Title    string
	Text     string
	ID       int64
	Branch   string
	Resource string
	Date     string
	From     string
	To       string
	Price    string
	Currency string
	Client   string
	Reason   string
	Link     string
	Brand    string
}

func newBodyData(v BookingView, name string, c copyText) bodyData {
	return bodyData{
		Name:     name,
		Title:    c.title,
		Text:     c.text,
		ID:       v.Booking.ID,
		Branch:   v.BranchName,
		Resource: v.ResourceName,
		Date:     v.LocalStart().Format("02-01-2006"),
		From:     v.LocalStart().Format("15:04"),
		To:       v.LocalEnd().Format("15:04"),
		Price:    v.Booking.TotalPrice.StringFixed(2),
		Currency: v.Booking.Currency,
		Brand:    brand,
	}
}

func render(c copyText, data bodyData) (message, error) {
	var buf bytes.Buffer
	if err := bodyTmpl.Execute(&buf, data); err != nil {
		return message{}, fmt.Errorf("render %q: %w", c.event, err)
	}
	return message{
		Subject: fmt.Sprintf("%s — %s", brand, c.event),
		Body:    buf.String(),
	}, nil
}

// renderClient renders the client email for kind. ok is false for kinds without client copy.
func renderClient(v BookingView, kind models.EventKind) (msg message, ok bool, err error) {
	c, ok := clientCopy[kind]
	if !ok {
		return message{}, false, nil
	}
	data := newBodyData(v, v.ClientName, c)
	if kind == models.EventRejected {
		data.Reason = v.Booking.RejectionReason
	}
	msg, err = render(c, data)
	return msg, true, err
}

// renderAdmin renders the admin notice for kind. Only creation events have admin copy.
func renderAdmin(v BookingView, kind models.EventKind, adminName string) (msg message, ok bool, err error) {
	c, ok := adminCopy[kind]
	if !ok {
		return message{}, false, nil
	}
	if adminName == "" {
		adminName = "equipo"
	}
	data := newBodyData(v, adminName, c)
	data.Client = v.ClientName
	msg, err = render(c, data)
	return msg, true, err
}

var surveyCopy = copyText{
	event: "¿Cómo estuvo tu partido?",
	title: "¡Gracias por jugar con nosotros!",
	text:  "Cuéntanos cómo fue tu experiencia respondiendo esta breve encuesta:",
}

func renderSurvey(v BookingView, link string) (message, error) {
	data := newBodyData(v, v.ClientName, surveyCopy)
	data.Link = link
	return render(surveyCopy, data)
}
