package order

import (
	"context"
	"errors"
	"fmt"

	"carro-de-som/pkg/models"

	"github.com/looplab/fsm"
)

// События жизненного цикла заказа
const (
	EventCheckout = "checkout" // заказ создан, ждем оплату
	EventPay      = "pay"      // платеж подтвержден
	EventDeliver  = "deliver"  // аудио доставлено
	EventRedo     = "redo"     // повторная озвучка без новой оплаты
)

// ErrInvalidTransition возвращается при недопустимом переходе состояния
var ErrInvalidTransition = errors.New("недопустимый переход состояния заказа")

var transitions = fsm.Events{
	{Name: EventCheckout, Src: []string{string(models.StatusIntake)}, Dst: string(models.StatusAwaitingPayment)},
	{Name: EventPay, Src: []string{string(models.StatusAwaitingPayment)}, Dst: string(models.StatusPaid)},
	{Name: EventDeliver, Src: []string{string(models.StatusPaid)}, Dst: string(models.StatusDelivered)},
	{Name: EventRedo, Src: []string{string(models.StatusPaid), string(models.StatusDelivered)}, Dst: string(models.StatusPaid)},
}

// Can проверяет, допустимо ли событие в текущем состоянии заказа
func Can(o *models.Order, event string) bool {
	return fsm.NewFSM(string(o.Status), transitions, nil).Can(event)
}

// Transition применяет событие к заказу по таблице переходов
func Transition(o *models.Order, event string) error {
	machine := fsm.NewFSM(string(o.Status), transitions, nil)

	err := machine.Event(context.Background(), event)
	var noTransition fsm.NoTransitionError
	if err != nil && !errors.As(err, &noTransition) {
		return fmt.Errorf("%w: %s из %s", ErrInvalidTransition, event, o.Status)
	}

	o.Status = models.Status(machine.Current())
	return nil
}
