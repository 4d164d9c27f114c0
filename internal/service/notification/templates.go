package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Kind: тип письма, используется в логах и метриках.
type Kind string

const (
	KindOrderPlaced    Kind = "order_placed"
	KindOrderShipped   Kind = "order_shipped"
	KindOrderDelivered Kind = "order_delivered"
	KindOrderCancelled Kind = "order_cancelled"
	KindStatusUpdate   Kind = "status_update"
)

// Message: готовое к отправке письмо.
type Message struct {
	Kind    Kind
	Subject string
	HTML    string
}

var layout = template.Must(template.New("order").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>{{ .Heading }}</h2>
  <p>{{ .Lead }}</p>
  <p>Order <strong>#{{ .Order.ID }}</strong> is now <strong>{{ .StatusLabel }}</strong>.</p>
  <table cellpadding="6" style="border-collapse: collapse;">
    <tr><th align="left">Item</th><th align="right">Qty</th><th align="right">Price</th></tr>
    {{- range .Order.Items }}
    <tr><td>{{ .ProductName }}</td><td align="right">{{ .Quantity }}</td><td align="right">{{ .UnitPrice.StringFixed 2 }}</td></tr>
    {{- end }}
  </table>
  <p>Subtotal: {{ .Order.Pricing.Subtotal.StringFixed 2 }}<br>
     Tax: {{ .Order.Pricing.Tax.StringFixed 2 }}<br>
     Shipping: {{ .Order.Pricing.ShippingFee.StringFixed 2 }}<br>
     Discount: {{ .Order.Pricing.Discount.StringFixed 2 }}<br>
     <strong>Total: {{ .Order.Pricing.Total.StringFixed 2 }}</strong></p>
  <p>Shipping to: {{ .Order.ShippingAddress.Address }}, {{ .Order.ShippingAddress.City }}, {{ .Order.ShippingAddress.PostalCode }}, {{ .Order.ShippingAddress.Country }}</p>
  <p>Payment: {{ .Order.PaymentMethod }}</p>
</body>
</html>`))

type templateData struct {
	Heading     string
	Lead        string
	StatusLabel string
	Order       domain.Order
}

// OrderPlaced формирует письмо-подтверждение оформления заказа.
func OrderPlaced(order domain.Order) (Message, error) {
	return render(KindOrderPlaced, fmt.Sprintf("Order #%s placed", order.ID), templateData{
		Heading: "Thank you for your order!",
		Lead:    "We have received your order and will let you know when it ships.",
		Order:   order,
	})
}

// StatusChanged формирует письмо о смене статуса заказа.
func StatusChanged(order domain.Order) (Message, error) {
	data := templateData{Order: order}
	kind := KindStatusUpdate
	subject := fmt.Sprintf("Order #%s status update", order.ID)

	switch order.Status {
	case domain.OrderStatusShipped:
		kind = KindOrderShipped
		subject = fmt.Sprintf("Order #%s shipped", order.ID)
		data.Heading = "Your order is on its way"
		data.Lead = "Your order has left our warehouse."
	case domain.OrderStatusDelivered:
		kind = KindOrderDelivered
		subject = fmt.Sprintf("Order #%s delivered", order.ID)
		data.Heading = "Your order has been delivered"
		data.Lead = "We hope you enjoy your purchase."
	case domain.OrderStatusCancelled:
		kind = KindOrderCancelled
		subject = fmt.Sprintf("Order #%s cancelled", order.ID)
		data.Heading = "Your order has been cancelled"
		data.Lead = "If you did not request this, please contact support."
	default:
		data.Heading = "Your order status has changed"
		data.Lead = "Here is the latest on your order."
	}

	return render(kind, subject, data)
}

func render(kind Kind, subject string, data templateData) (Message, error) {
	data.StatusLabel = StatusLabel(data.Order.Status)

	var buf bytes.Buffer
	if err := layout.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render %s email: %w", kind, err)
	}
	return Message{Kind: kind, Subject: subject, HTML: buf.String()}, nil
}

// StatusLabel возвращает человекочитаемое название статуса ("out_for_delivery" → "Out for delivery").
func StatusLabel(status domain.OrderStatus) string {
	label := strings.ReplaceAll(string(status), "_", " ")
	if label == "" {
		return label
	}
	return strings.ToUpper(label[:1]) + label[1:]
}
