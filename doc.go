/*
Package formbridge turns dashboard form submissions into the parameter lists a
BPM engine expects, and delivers them.

A form is a flat map of field values (domain.FormData). A mapping definition
declares which fields are sent, under which parameter names, through which
transforms, and which computed (hidden) parameters are appended. The Bridge
compiles definitions on first use, validates form data against the mapping
schema, builds the merged batch and hands it to a ports.Dispatcher.

# Concept

Mapping definitions live outside the code: by default one file per mapping in a
Loam repository (Markdown front matter, YAML or JSON). The engine is reached
only through ports.Dispatcher; pkg/client is the HTTP implementation. Drafts of
forms being filled are kept by a session.Manager.

# Usage

	b, err := formbridge.New("./mappings", formbridge.WithDispatcher(dashboard))
	if err != nil {
		log.Fatal(err)
	}

	// See what would be sent.
	batch, err := b.Preview(ctx, "reembolso", domain.FormData{"empleado": "juan", "monto": "1500"}, domain.Audit{UserID: "u1"})

	// Send it.
	res, err := b.Submit(ctx, formbridge.SubmitRequest{Mapping: "reembolso", Data: data})
	log.Println(res.Receipt.InstanceID)

Without a mapping, All sends every field as an Input parameter:

	params, err := b.All(data)
*/
package formbridge
